package main

import (
	"time"

	"github.com/filigree-dev/keel/internal/types"
)

// parseWindowRFC3339 resolves get_flow_metrics's since/until params,
// defaulting until to now and since to 30 days before until when
// either is omitted.
func parseWindowRFC3339(since, until string) (time.Time, time.Time, error) {
	untilT := time.Now().UTC()
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, time.Time{}, types.Invalid("parse until: %v", err)
		}
		untilT = t
	}
	sinceT := untilT.AddDate(0, 0, -30)
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return time.Time{}, time.Time{}, types.Invalid("parse since: %v", err)
		}
		sinceT = t
	}
	return sinceT, untilT, nil
}

func secondsToDuration(s int64) time.Duration {
	if s <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(s) * time.Second
}

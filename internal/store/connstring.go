package store

import (
	"fmt"
	"strings"
	"time"
)

// connString builds a SQLite file: URI carrying the pragmas every
// connection needs: WAL journaling so readers never block behind an
// open writer, a busy-wait timeout before surfacing contention,
// referential integrity enabled, and immediate-mode write transactions.
func connString(path string, readOnly bool, busyWait time.Duration) string {
	path = strings.TrimSpace(path)
	busyMs := busyWait.Milliseconds()

	mode := ""
	if readOnly {
		mode = "&mode=ro"
	}
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_txlock=immediate%s",
		path, busyMs, mode,
	)
}

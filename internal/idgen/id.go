// Package idgen generates issue identifiers of the shape
// "{prefix}-{6 lowercase hex}", retrying on collision and falling back
// to a 10-hex suffix. Collisions are checked with a direct existence
// check per attempt rather than loading every id into memory.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// maxShortAttempts is the number of 6-hex attempts before falling back
// to a 10-hex suffix.
const maxShortAttempts = 10

// Exists reports whether id is already present in the store. Generate
// calls this once per attempt; callers should back it by an indexed
// existence check, never a full-table scan.
type Exists func(id string) (bool, error)

// Generate produces a collision-free id for prefix using exists as the
// existence oracle. It never returns a colliding id unless exists
// itself is unreliable.
func Generate(prefix string, exists Exists) (string, error) {
	for i := 0; i < maxShortAttempts; i++ {
		id, err := candidate(prefix, 6)
		if err != nil {
			return "", err
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}

	// Fallback: 10-hex suffix. Still retried a bounded number of times
	// in the vanishingly unlikely event of a second collision.
	for i := 0; i < maxShortAttempts; i++ {
		id, err := candidate(prefix, 10)
		if err != nil {
			return "", err
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}

	return "", fmt.Errorf("idgen: exhausted id generation attempts for prefix %q", prefix)
}

// candidate returns "{prefix}-{hexLen hex chars}" using crypto/rand.
func candidate(prefix string, hexLen int) (string, error) {
	buf := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: generate random suffix: %w", err)
	}
	suffix := hex.EncodeToString(buf)[:hexLen]
	return fmt.Sprintf("%s-%s", prefix, suffix), nil
}

package booking

import (
	"hash/fnv"
	"time"
)

const dateLayout = "2006-01-02"

// LockKey derives the advisory lock key for one tenant+date pair via
// FNV-1a. Collisions between unrelated pairs only cause occasional extra
// serialization; the unique index on booking stays the final arbiter.
func LockKey(tenantID string, date time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(date.Format(dateLayout)))
	return int64(h.Sum64())
}

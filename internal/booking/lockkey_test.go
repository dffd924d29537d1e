package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockKey_Deterministic(t *testing.T) {
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, LockKey("tenant-1", date), LockKey("tenant-1", date))
}

func TestLockKey_IgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 9, 15, 8, 30, 0, 0, time.UTC)
	midnight := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, LockKey("tenant-1", morning), LockKey("tenant-1", midnight))
}

func TestLockKey_DistinguishesTenantsAndDates(t *testing.T) {
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	nextDay := date.AddDate(0, 0, 1)

	assert.NotEqual(t, LockKey("tenant-1", date), LockKey("tenant-2", date))
	assert.NotEqual(t, LockKey("tenant-1", date), LockKey("tenant-1", nextDay))
}

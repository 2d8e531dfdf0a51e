package persist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyClaimSuppressesWithinTTL(t *testing.T) {
	clock := time.Unix(1000, 0)
	s := NewIdempotencySet(60 * time.Second)
	s.now = func() time.Time { return clock }

	assert.True(t, s.Claim("10:20"))
	assert.False(t, s.Claim("10:20"), "second fire inside the window")
	assert.True(t, s.Claim("20:10"), "reversed pair is a different settlement")

	clock = clock.Add(59 * time.Second)
	assert.False(t, s.Claim("10:20"))

	clock = clock.Add(2 * time.Second)
	assert.True(t, s.Claim("10:20"), "claimable again after the TTL")
}

func TestIdempotencyReapsExpiredEntries(t *testing.T) {
	clock := time.Unix(1000, 0)
	s := NewIdempotencySet(60 * time.Second)
	s.now = func() time.Time { return clock }

	s.Claim("1:2")
	s.Claim("3:4")
	assert.Equal(t, 2, s.Len())

	clock = clock.Add(61 * time.Second)
	s.Claim("5:6")
	assert.Equal(t, 1, s.Len(), "stale entries reaped on the next claim")
}

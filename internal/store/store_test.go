package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGetRoundTrip(t *testing.T) {
	s := New(Options{MaxItems: 10, Step: time.Hour})
	require.NoError(t, s.Put("k1", []byte("v1")))

	val, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
}

func TestGetMissingKey(t *testing.T) {
	s := New(Options{MaxItems: 10, Step: time.Hour})
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestPutRejectedByValidatorLeavesExistingValue(t *testing.T) {
	reject := false
	s := New(Options{
		MaxItems: 10,
		Step:     time.Hour,
		Validate: func(key string, newValue, oldValue []byte) error {
			if reject {
				return ErrRejected
			}
			return nil
		},
	})
	require.NoError(t, s.Put("k1", []byte("v1")))

	reject = true
	err := s.Put("k1", []byte("v2"))
	assert.ErrorIs(t, err, ErrRejected)

	val, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
}

func TestValidatorSeesOldValueOnUpdate(t *testing.T) {
	var seenOld []byte
	var sawUpdate bool
	s := New(Options{
		MaxItems: 10,
		Step:     time.Hour,
		Validate: func(key string, newValue, oldValue []byte) error {
			if oldValue != nil {
				seenOld = oldValue
				sawUpdate = true
			}
			return nil
		},
	})
	require.NoError(t, s.Put("k1", []byte("v1")))
	require.NoError(t, s.Put("k1", []byte("v2")))

	assert.True(t, sawUpdate)
	assert.Equal(t, []byte("v1"), seenOld)

	val, _ := s.Get("k1")
	assert.Equal(t, []byte("v2"), val)
}

func TestUpdatePreservesBirthday(t *testing.T) {
	current := time.Unix(1000, 0)
	clock := func() time.Time { return current }
	s := New(Options{MaxItems: 10, Step: time.Hour, Now: clock})

	require.NoError(t, s.Put("k1", []byte("v1")))
	current = current.Add(time.Hour)
	require.NoError(t, s.Put("k1", []byte("v2")))

	// Still older than 30 minutes since birthday was not reset on update.
	items := s.IterOlderThan(30 * time.Minute)
	require.Len(t, items, 1)
	assert.Equal(t, "k1", items[0].Key)
}

func TestCullEvictsLeastPopularWhenOverCapacity(t *testing.T) {
	s := New(Options{MaxItems: 2, Step: time.Hour})

	require.NoError(t, s.Put("k1", []byte("v1")))
	require.NoError(t, s.Put("k2", []byte("v2")))

	// Bump k2's popularity so it clearly outranks k1 and k3.
	_, _ = s.Get("k2")

	require.NoError(t, s.Put("k3", []byte("v3")))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("k2")
	assert.True(t, ok, "most popular key should survive eviction")
}

func TestIterOlderThanStopsAtCutoff(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	s := New(Options{MaxItems: 10, Step: time.Hour, Now: clock})

	require.NoError(t, s.Put("old", []byte("v")))
	current = current.Add(2 * time.Hour)
	require.NoError(t, s.Put("new", []byte("v")))

	items := s.IterOlderThan(time.Hour)
	require.Len(t, items, 1)
	assert.Equal(t, "old", items[0].Key)
}

func TestIterAllReturnsEverything(t *testing.T) {
	s := New(Options{MaxItems: 10, Step: time.Hour})
	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Put("b", []byte("2")))

	items := s.IterAll()
	assert.Len(t, items, 2)
}

func TestFuturePopularityPromotesOnFirstInsert(t *testing.T) {
	current := time.Unix(1000, 0)
	s := New(Options{MaxItems: 10, Step: time.Hour, Now: func() time.Time { return current }})

	// Looking up a key that doesn't exist yet stages popularity for it.
	_, ok := s.Get("k1")
	assert.False(t, ok)

	require.NoError(t, s.Put("k1", []byte("v1")))

	// The staged score (1000s + one 3600s step) moves into the real queue.
	_, staged := s.futurePopularity.get("k1")
	assert.False(t, staged)
	score, ok := s.popularity.get("k1")
	require.True(t, ok)
	assert.Equal(t, float64(4600), score)

	val, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
}

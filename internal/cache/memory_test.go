package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreSetGetExpire(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "RoomID7", []byte(`{"a":1}`), 300*time.Second))
	got, err := s.Get(ctx, "RoomID7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	clock.Advance(301 * time.Second)
	_, err = s.Get(ctx, "RoomID7")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, s.Delete(ctx, "a", "b", "missing"))

	ok, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTrackerRollingTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, UsedRoomsSet, "7", 300*time.Second))
	clock.Advance(200 * time.Second)
	require.NoError(t, s.Add(ctx, UsedRoomsSet, "8", 300*time.Second))
	clock.Advance(200 * time.Second)

	members, err := s.Members(ctx, UsedRoomsSet)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, members)

	clock.Advance(101 * time.Second)
	members, err = s.Members(ctx, UsedRoomsSet)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemoryTrackerRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, UsedUsersSet, "1", time.Minute))
	require.NoError(t, s.Add(ctx, UsedUsersSet, "2", time.Minute))

	require.NoError(t, s.Remove(ctx, UsedUsersSet, "1"))

	members, err := s.Members(ctx, UsedUsersSet)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, members)
}

func TestMemoryClaimCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()
	key := DashboardCooldownKey("python")

	won, err := s.Claim(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, won)

	clock.Advance(9 * time.Second)
	won, err = s.Claim(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, won)

	clock.Advance(time.Second)
	won, err = s.Claim(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemoryClaimIsExclusiveUnderContention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.Claim(ctx, "cooldown", time.Minute)
			if err == nil && won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "RoomID7", RoomDetailKey(7))
	assert.Equal(t, "UserID3", UserProfileKey(3))
	assert.Equal(t, "homepage_cache", HomepageKey(""))
	assert.Equal(t, "homepage_cache_go", HomepageKey("go"))
	assert.Equal(t, "dashboard_last_updated_", DashboardCooldownKey(""))
}

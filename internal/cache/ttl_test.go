package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetBeforeExpiry(t *testing.T) {
	c := New[string]()
	c.Put("cred-1", "contact-1", 100*time.Millisecond)

	got, ok := c.Get("cred-1")
	require.True(t, ok)
	require.Equal(t, "contact-1", got)
}

func TestExpiryOnRead(t *testing.T) {
	c := New[string]()
	c.Put("cred-1", "contact-1", 100*time.Millisecond)

	time.Sleep(150 * time.Millisecond)

	_, ok := c.Get("cred-1")
	require.False(t, ok)

	// The evicting Get removed the entry entirely.
	stats := c.Stats()
	require.Equal(t, 0, stats.Total)
	require.Equal(t, 0, stats.Active)
}

func TestExpiredEntriesLingerUntilRead(t *testing.T) {
	c := New[string]()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("a", "1", time.Minute)
	c.Put("b", "2", time.Second)

	c.now = func() time.Time { return base.Add(30 * time.Second) }

	stats := c.Stats()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Active)
	require.Equal(t, 1, stats.Expired)

	// Reading the expired key sweeps it.
	_, ok := c.Get("b")
	require.False(t, ok)
	require.Equal(t, 1, c.Stats().Total)
}

func TestPutReplacesDeadline(t *testing.T) {
	c := New[string]()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("k", "v1", time.Second)
	c.Put("k", "v2", time.Minute)

	c.now = func() time.Time { return base.Add(10 * time.Second) }
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v2", got)
}

func TestClear(t *testing.T) {
	c := New[string]()
	c.Put("a", "1", time.Minute)
	c.Put("b", "2", time.Minute)

	c.Clear()

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, Stats{}, c.Stats())
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%8)
			for j := 0; j < 100; j++ {
				c.Put(key, n, time.Millisecond)
				c.Get(key)
				c.Stats()
			}
		}(i)
	}
	wg.Wait()
}

package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sprintboard/internal/models"
)

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, 0)
	c.Set("1", models.User{ID: 1})
	c.Set("2", models.User{ID: 2})
	_, _ = c.Get("1")
	c.Set("3", models.User{ID: 3})

	_, ok := c.Get("2")
	assert.False(t, ok)
	_, ok = c.Get("1")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	c := NewCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("5", models.User{ID: 5, Name: "Ann"})
	u, ok := c.Get("5")
	assert.True(t, ok)
	assert.Equal(t, "Ann", u.Name)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("5")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_PeekLeavesOrderAndExpiredEntries(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	c := NewCache(2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("1", models.User{ID: 1, Name: "Ann"})
	c.Set("2", models.User{ID: 2, Name: "Bob"})
	u, ok := c.Peek("1")
	assert.True(t, ok)
	assert.Equal(t, "Ann", u.Name)

	c.Set("3", models.User{ID: 3})
	_, ok = c.Peek("1")
	assert.False(t, ok, "peeked entry is still the least recently used")
	_, ok = c.Peek("2")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Peek("2")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_SetReplaces(t *testing.T) {
	c := NewCache(0, 0)
	c.Set("5", models.User{ID: 5, Name: "Ann"})
	c.Set("5", models.User{ID: 5, Name: "Anne"})
	u, _ := c.Get("5")
	assert.Equal(t, "Anne", u.Name)
	assert.Equal(t, 1, c.Len())
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	d.Put(models.User{ID: 1, Name: "Ann"}, models.User{ID: 2, Name: "Ben"})
	u, ok := d.Get("2")
	assert.True(t, ok)
	assert.Equal(t, "Ben", u.Name)
	assert.Equal(t, 2, d.Len())
}

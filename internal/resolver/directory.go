package resolver

import (
	"strconv"
	"sync"

	"sprintboard/internal/models"
)

// Directory is the process-wide user store shared by every board. It is
// filled by whoever loads users (user listings, seeding) and only read by
// the resolvers.
type Directory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]models.User)}
}

// Put stores or replaces users keyed by their string id.
func (d *Directory) Put(users ...models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range users {
		d.users[strconv.FormatInt(u.ID, 10)] = u
	}
}

// Get looks up a user by normalized id.
func (d *Directory) Get(key string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[key]
	return u, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

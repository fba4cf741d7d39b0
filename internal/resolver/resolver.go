// Package resolver merges user records from the shared directory, a
// board-local cache and the sprint member list, and refreshes misses in the
// background without duplicating requests.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sprintboard/internal/ids"
	"sprintboard/internal/logger"
	"sprintboard/internal/models"
)

// LoadingName is shown for users whose record has not arrived yet.
const LoadingName = "Loading..."

// UnassignedName is the display name of an empty assignee list.
const UnassignedName = "unassigned"

var errClosed = errors.New("resolver closed")

// Fetcher loads a single user from the remote user store.
type Fetcher interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// UserLike is a resolved user or a stub standing in for one.
type UserLike struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Stub   bool   `json:"stub,omitempty"`
}

// Resolution is the fan-out result for an assignee value.
type Resolution struct {
	IsMultiple bool       `json:"isMultiple"`
	Users      []UserLike `json:"users"`
	Count      int        `json:"count"`
}

// Options tunes the local cache and background fetches.
type Options struct {
	CacheSize    int
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// Resolver answers user lookups for one open board. Reads never mutate
// state; fetching is a separate, explicitly scheduled effect.
type Resolver struct {
	dir     *Directory
	cache   *Cache
	fetcher Fetcher
	log     *logger.Logger
	timeout time.Duration

	mu       sync.RWMutex
	fallback map[string]models.User

	inflightMu sync.Mutex
	inflight   map[string]struct{}
	group      singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a resolver reading from dir and fetching misses through fetcher.
func New(dir *Directory, fetcher Fetcher, log *logger.Logger, opts Options) *Resolver {
	if dir == nil {
		dir = NewDirectory()
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		dir:      dir,
		cache:    NewCache(opts.CacheSize, opts.CacheTTL),
		fetcher:  fetcher,
		log:      log,
		timeout:  opts.FetchTimeout,
		fallback: make(map[string]models.User),
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetFallback replaces the member list consulted after the directory and
// the local cache.
func (r *Resolver) SetFallback(users []models.User) {
	fallback := make(map[string]models.User, len(users))
	for _, u := range users {
		fallback[strconv.FormatInt(u.ID, 10)] = u
	}
	r.mu.Lock()
	r.fallback = fallback
	r.mu.Unlock()
}

// ResolveUser returns the best known record for id, or a stub.
func (r *Resolver) ResolveUser(id any) UserLike {
	key := ids.Key(id)
	if u, ok := r.lookup(key); ok {
		return UserLike{ID: key, Name: u.Name, Avatar: u.Avatar}
	}
	return UserLike{ID: key, Name: LoadingName, Stub: true}
}

// Resolve fans out over every id held by raw. Order and duplicates follow
// the input so multi-assignment order is kept.
func (r *Resolver) Resolve(raw any) Resolution {
	list := ids.Normalize(raw)
	res := Resolution{
		IsMultiple: len(list) > 1,
		Users:      make([]UserLike, 0, len(list)),
		Count:      len(list),
	}
	for _, id := range list {
		res.Users = append(res.Users, r.ResolveUser(id))
	}
	return res
}

// Pending lists the distinct ids of raw that currently resolve to a stub.
func (r *Resolver) Pending(raw any) []string {
	var out []string
	for _, id := range ids.Unique(ids.Normalize(raw)) {
		if _, ok := r.lookup(id); !ok {
			out = append(out, id)
		}
	}
	return out
}

// ScheduleUserFetch starts a background fetch for every id of raw that is
// neither in the directory nor in the local cache nor already in flight.
func (r *Resolver) ScheduleUserFetch(raw any) {
	for _, key := range ids.Unique(ids.Normalize(raw)) {
		if _, ok := r.dir.Get(key); ok {
			continue
		}
		if _, ok := r.cache.Peek(key); ok {
			continue
		}
		n, err := ids.ParseInt(key)
		if err != nil {
			r.log.Debugw("skipping user fetch", "user_id", key, "error", err)
			continue
		}

		r.inflightMu.Lock()
		if _, busy := r.inflight[key]; busy || r.ctx.Err() != nil {
			r.inflightMu.Unlock()
			continue
		}
		r.inflight[key] = struct{}{}
		r.wg.Add(1)
		r.inflightMu.Unlock()

		go r.background(key, n)
	}
}

// FetchUser loads id now, sharing any request already in flight for it.
func (r *Resolver) FetchUser(ctx context.Context, id any) (models.User, error) {
	key := ids.Key(id)
	if u, ok := r.dir.Get(key); ok {
		return u, nil
	}
	if u, ok := r.cache.Get(key); ok {
		return u, nil
	}
	n, err := ids.ParseInt(key)
	if err != nil {
		return models.User{}, err
	}
	return r.load(ctx, key, n)
}

// Wait blocks until every scheduled fetch has finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Close cancels outstanding fetches and waits for them; results that land
// afterwards are discarded.
func (r *Resolver) Close() {
	r.inflightMu.Lock()
	r.cancel()
	r.inflightMu.Unlock()
	r.wg.Wait()
}

// DisplayName formats the names of a resolution for a card.
func DisplayName(res Resolution) string {
	names := make([]string, 0, len(res.Users))
	for _, u := range res.Users {
		names = append(names, u.Name)
	}
	switch len(names) {
	case 0:
		return UnassignedName
	case 1:
		return names[0]
	case 2:
		return strings.Join(names, ", ")
	default:
		return fmt.Sprintf("%s, %s +%d", names[0], names[1], len(names)-2)
	}
}

func (r *Resolver) lookup(key string) (models.User, bool) {
	if key == "" {
		return models.User{}, false
	}
	if u, ok := r.dir.Get(key); ok {
		return u, true
	}
	if u, ok := r.cache.Peek(key); ok {
		return u, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.fallback[key]
	return u, ok
}

func (r *Resolver) background(key string, id int64) {
	defer r.wg.Done()
	defer func() {
		r.inflightMu.Lock()
		delete(r.inflight, key)
		r.inflightMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	if _, err := r.load(ctx, key, id); err != nil && !errors.Is(err, errClosed) && r.ctx.Err() == nil {
		r.log.Warnw("background user fetch failed", "user_id", key, "error", err)
	}
}

func (r *Resolver) load(ctx context.Context, key string, id int64) (models.User, error) {
	if r.fetcher == nil {
		return models.User{}, fmt.Errorf("user %s: no fetcher configured", key)
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		if u, ok := r.cache.Get(key); ok {
			return u, nil
		}
		u, err := r.fetcher.GetUser(ctx, id)
		if err != nil {
			return models.User{}, err
		}
		if r.ctx.Err() != nil {
			return models.User{}, errClosed
		}
		r.cache.Set(key, u)
		return u, nil
	})
	if err != nil {
		return models.User{}, err
	}
	return v.(models.User), nil
}

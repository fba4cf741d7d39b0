package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/models"
)

// fakeFetcher serves users from a map, optionally holding every call until
// release is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	users   map[int64]models.User
	calls   map[int64]int
	release chan struct{}
	err     error
}

func newFakeFetcher(users ...models.User) *fakeFetcher {
	f := &fakeFetcher{users: make(map[int64]models.User), calls: make(map[int64]int)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeFetcher) GetUser(ctx context.Context, id int64) (models.User, error) {
	f.mu.Lock()
	f.calls[id]++
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return models.User{}, ctx.Err()
		}
	}
	if f.err != nil {
		return models.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

func (f *fakeFetcher) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestResolveUser_Precedence(t *testing.T) {
	dir := NewDirectory()
	dir.Put(models.User{ID: 1, Name: "Directory Ann"})

	r := New(dir, newFakeFetcher(), nil, Options{})
	defer r.Close()

	r.cache.Set("1", models.User{ID: 1, Name: "Cached Ann"})
	r.cache.Set("2", models.User{ID: 2, Name: "Cached Bob"})
	r.SetFallback([]models.User{
		{ID: 2, Name: "Member Bob"},
		{ID: 3, Name: "Member Cid"},
	})

	assert.Equal(t, UserLike{ID: "1", Name: "Directory Ann"}, r.ResolveUser(1))
	assert.Equal(t, UserLike{ID: "2", Name: "Cached Bob"}, r.ResolveUser("2"))
	assert.Equal(t, UserLike{ID: "3", Name: "Member Cid"}, r.ResolveUser(" 3 "))
	assert.Equal(t, UserLike{ID: "4", Name: LoadingName, Stub: true}, r.ResolveUser(4))
}

func TestResolveUser_DoesNotFetch(t *testing.T) {
	f := newFakeFetcher(models.User{ID: 9, Name: "Nia"})
	r := New(nil, f, nil, Options{})
	defer r.Close()

	u := r.ResolveUser("9")
	assert.True(t, u.Stub)
	r.Wait()
	assert.Equal(t, 0, f.callCount(9))
}

func TestResolveUser_LeavesCacheUntouched(t *testing.T) {
	r := New(nil, newFakeFetcher(), nil, Options{CacheSize: 2})
	defer r.Close()

	r.cache.Set("1", models.User{ID: 1, Name: "Ann"})
	r.cache.Set("2", models.User{ID: 2, Name: "Bob"})
	assert.Equal(t, "Ann", r.ResolveUser(1).Name)
	assert.Empty(t, r.Pending(1))

	r.cache.Set("3", models.User{ID: 3, Name: "Cid"})
	assert.True(t, r.ResolveUser(1).Stub, "resolving does not count as a use")
	assert.Equal(t, "Bob", r.ResolveUser(2).Name)
}

func TestResolve_MultipleWithSingleScheduledFetch(t *testing.T) {
	dir := NewDirectory()
	dir.Put(models.User{ID: 5, Name: "Ann"})
	f := newFakeFetcher(models.User{ID: 6, Name: "Ben"})
	f.release = make(chan struct{})

	r := New(dir, f, nil, Options{})
	defer r.Close()

	want := Resolution{
		IsMultiple: true,
		Users: []UserLike{
			{ID: "5", Name: "Ann"},
			{ID: "6", Name: LoadingName, Stub: true},
		},
		Count: 2,
	}

	for i := 0; i < 2; i++ {
		res := r.Resolve("5,6")
		assert.Equal(t, want, res)
		r.ScheduleUserFetch(r.Pending("5,6"))
	}

	close(f.release)
	r.Wait()

	assert.Equal(t, 1, f.callCount(6))
	assert.Equal(t, 0, f.callCount(5))
	assert.Equal(t, UserLike{ID: "6", Name: "Ben"}, r.ResolveUser(6))
}

func TestResolve_SingleAndEmpty(t *testing.T) {
	dir := NewDirectory()
	dir.Put(models.User{ID: 5, Name: "Ann"})
	r := New(dir, nil, nil, Options{})
	defer r.Close()

	single := r.Resolve(5)
	assert.False(t, single.IsMultiple)
	assert.Equal(t, 1, single.Count)

	empty := r.Resolve(nil)
	assert.False(t, empty.IsMultiple)
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Users)
}

func TestScheduleUserFetch_ConcurrentCallsDeduplicated(t *testing.T) {
	f := newFakeFetcher(models.User{ID: 7, Name: "Gus"})
	f.release = make(chan struct{})
	r := New(nil, f, nil, Options{})
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ScheduleUserFetch([]any{7, "7"})
		}()
	}
	wg.Wait()
	close(f.release)
	r.Wait()

	assert.Equal(t, 1, f.callCount(7))
}

func TestScheduleUserFetch_SkipsKnownAndMalformed(t *testing.T) {
	dir := NewDirectory()
	dir.Put(models.User{ID: 1, Name: "Ann"})
	f := newFakeFetcher()
	r := New(dir, f, nil, Options{})
	defer r.Close()
	r.cache.Set("2", models.User{ID: 2, Name: "Bob"})

	r.ScheduleUserFetch("1,2,abc,")
	r.Wait()

	assert.Equal(t, 0, f.callCount(1))
	assert.Equal(t, 0, f.callCount(2))
}

func TestScheduleUserFetch_FailureLeavesStub(t *testing.T) {
	f := newFakeFetcher()
	f.err = errors.New("network down")
	r := New(nil, f, nil, Options{})
	defer r.Close()

	r.ScheduleUserFetch(8)
	r.Wait()
	assert.True(t, r.ResolveUser(8).Stub)

	// a later pass schedules again
	r.ScheduleUserFetch(8)
	r.Wait()
	assert.Equal(t, 2, f.callCount(8))
}

func TestFetchUser_SharesInFlightRequest(t *testing.T) {
	f := newFakeFetcher(models.User{ID: 4, Name: "Dee"})
	f.release = make(chan struct{})
	r := New(nil, f, nil, Options{})
	defer r.Close()

	r.ScheduleUserFetch(4)

	var got atomic.Value
	done := make(chan struct{})
	go func() {
		u, err := r.FetchUser(context.Background(), "4")
		if err == nil {
			got.Store(u)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(f.release)
	<-done
	r.Wait()

	require.NotNil(t, got.Load())
	assert.Equal(t, "Dee", got.Load().(models.User).Name)
	assert.Equal(t, 1, f.callCount(4))
}

func TestFetchUser_Malformed(t *testing.T) {
	r := New(nil, newFakeFetcher(), nil, Options{})
	defer r.Close()
	_, err := r.FetchUser(context.Background(), "x")
	assert.Error(t, err)
}

func TestClose_DiscardsLateResults(t *testing.T) {
	f := newFakeFetcher(models.User{ID: 3, Name: "Cid"})
	f.release = make(chan struct{})
	r := New(nil, f, nil, Options{})

	r.ScheduleUserFetch(3)
	r.Close()

	assert.Equal(t, 0, r.cache.Len())
	r.ScheduleUserFetch(3)
	r.Wait()
	assert.LessOrEqual(t, f.callCount(3), 1)
}

func TestDisplayName(t *testing.T) {
	names := func(n ...string) Resolution {
		res := Resolution{Count: len(n)}
		for _, name := range n {
			res.Users = append(res.Users, UserLike{Name: name})
		}
		return res
	}

	assert.Equal(t, "unassigned", DisplayName(names()))
	assert.Equal(t, "Ann", DisplayName(names("Ann")))
	assert.Equal(t, "Ann, Ben", DisplayName(names("Ann", "Ben")))
	assert.Equal(t, "Ann, Ben +2", DisplayName(names("Ann", "Ben", "Cid", "Dee")))
}

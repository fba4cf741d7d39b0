package board

import (
	"context"
	"strconv"
	"sync"

	"sprintboard/internal/logger"
	"sprintboard/internal/models"
	"sprintboard/internal/resolver"
)

// Session is the derived board state of one open sprint: the sprint record,
// the local task cache, the three columns and the user resolver. Every
// change to the record or the cache recomputes the columns.
type Session struct {
	sprintID int64
	log      *logger.Logger
	resolver *resolver.Resolver

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sprint   models.Sprint
	tasks    TaskCache
	catalog  Catalog
	members  []models.AgileMember
	buckets  Buckets
	version  uint64
	closed   bool
	inflight map[string]struct{}
}

func newSession(sprint models.Sprint, tasks TaskCache, catalog Catalog, res *resolver.Resolver, log *logger.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		sprintID: sprint.ID,
		log:      log,
		resolver: res,
		ctx:      ctx,
		cancel:   cancel,
		sprint:   sprint,
		tasks:    tasks,
		catalog:  catalog,
		inflight: make(map[string]struct{}),
	}
	s.rebucket()
	return s
}

// SprintID returns the id of the sprint this board shows.
func (s *Session) SprintID() int64 { return s.sprintID }

// Resolver returns the board's user resolver.
func (s *Session) Resolver() *resolver.Resolver { return s.resolver }

// Snapshot returns the sprint record, a copy of the columns and the
// version they belong to.
func (s *Session) Snapshot() (models.Sprint, Buckets, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sprint, s.buckets.Clone(), s.version
}

// Placeholders lists the cards still waiting for their task.
func (s *Session) Placeholders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets.Placeholders()
}

// Sprint returns the current sprint record.
func (s *Session) Sprint() models.Sprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sprint
}

// Version increases with every state change.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Catalog returns the tag catalog of the sprint's team.
func (s *Session) Catalog() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Locate finds the card of task id in any column.
func (s *Session) Locate(id string) (Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets.Locate(id)
}

// Task returns the cached task for id.
func (s *Session) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks.Lookup(id)
}

// Members returns the role assignments of the sprint.
func (s *Session) Members() []models.AgileMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AgileMember(nil), s.members...)
}

// Closed reports whether the board has been closed.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) setSprint(sprint models.Sprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sprint = sprint
	s.rebucket()
}

func (s *Session) putTask(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.tasks.Put(task)
	s.rebucket()
}

func (s *Session) setCatalog(catalog Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.catalog = catalog
	s.rebucket()
}

func (s *Session) reload(sprint models.Sprint, tasks []models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sprint = sprint
	for _, t := range tasks {
		s.tasks.Put(t)
	}
	s.rebucket()
}

func (s *Session) setMembers(members []models.AgileMember) {
	users := make([]models.User, 0, len(members))
	for _, m := range members {
		users = append(users, models.User{ID: m.UserID, Name: m.UserName, Avatar: m.UserAvatar})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.members = members
	s.version++
	s.mu.Unlock()

	s.resolver.SetFallback(users)
}

// commitMove applies a persisted move to the local state in one update: the
// card leaves every column and joins the target column.
func (s *Session) commitMove(sprint models.Sprint, id, status string) Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	var card Card
	if task, ok := s.tasks.Lookup(id); ok {
		task = s.catalog.WithStatus(task, status)
		if !s.closed {
			s.tasks.Put(task)
		}
		card = s.catalog.Project(task, status)
	} else {
		card = placeholder(id, status)
	}
	if s.closed {
		return card
	}

	s.sprint = sprint
	s.buckets = s.buckets.withCard(card)
	s.version++
	return card
}

// commitTask stores a persisted task and refreshes its card in place.
func (s *Session) commitTask(task models.Task) Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.StatusTodo
	if current, ok := s.buckets.Locate(strconv.FormatInt(task.ID, 10)); ok {
		status = current.Status
	}
	card := s.catalog.Project(task, status)
	if s.closed {
		return card
	}

	s.tasks.Put(task)
	s.buckets = s.buckets.replaceCard(card)
	s.version++
	return card
}

// markInflight reserves a background task fetch for id; false means one is
// already running or the board is closed.
func (s *Session) markInflight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Session) clearInflight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.resolver.Close()
}

// rebucket recomputes the columns; the caller holds s.mu.
func (s *Session) rebucket() {
	if conflicts := Conflicts(s.sprint.TaskIDs); len(conflicts) > 0 {
		s.log.Warnw("task listed in more than one bucket, keeping the last one",
			"sprint_id", s.sprintID, "task_ids", conflicts)
	}
	s.buckets = Bucketize(s.sprint.TaskIDs, s.tasks, s.catalog)
	s.version++
}

// Package board turns a sprint record into the three board columns and
// applies task moves, assignments and attachment changes so that the remote
// store and the local columns never disagree.
package board

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"sprintboard/internal/ids"
	"sprintboard/internal/lock"
	"sprintboard/internal/logger"
	"sprintboard/internal/models"
	"sprintboard/internal/resolver"
)

// Options configures a Coordinator.
type Options struct {
	TagNames     TagNames
	Resolver     resolver.Options
	FetchTimeout time.Duration
}

// Coordinator owns the open boards and runs every mutation through
// validate, persist, then commit.
type Coordinator struct {
	sprints  SprintStore
	tasks    TaskStore
	users    UserStore
	roles    RoleStore
	tags     TagCatalog
	dir      *resolver.Directory
	notifier Notifier
	log      *logger.Logger
	locks    *lock.MutexMap
	opts     Options

	taskGroup singleflight.Group
	wg        sync.WaitGroup

	mu       sync.Mutex
	sessions map[int64]*Session
	names    TagNames
}

// NewCoordinator wires the engine to its collaborators.
func NewCoordinator(store Store, dir *resolver.Directory, notifier Notifier, log *logger.Logger, opts Options) *Coordinator {
	if dir == nil {
		dir = resolver.NewDirectory()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.TagNames == (TagNames{}) {
		opts.TagNames = DefaultTagNames()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Coordinator{
		sprints:  store,
		tasks:    store,
		users:    store,
		roles:    store,
		tags:     store,
		dir:      dir,
		notifier: notifier,
		log:      log,
		locks:    lock.NewMutexMap(),
		opts:     opts,
		sessions: make(map[int64]*Session),
		names:    opts.TagNames,
	}
}

// Directory returns the shared user directory.
func (c *Coordinator) Directory() *resolver.Directory { return c.dir }

// Open returns the board of sprintID, loading it on first use.
func (c *Coordinator) Open(ctx context.Context, sprintID int64) (*Session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[sprintID]; ok {
		c.mu.Unlock()
		return s, nil
	}
	names := c.names
	c.mu.Unlock()

	s, err := c.load(ctx, sprintID, names)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.sessions[sprintID]; ok {
		c.mu.Unlock()
		s.close()
		return existing, nil
	}
	c.sessions[sprintID] = s
	c.mu.Unlock()

	c.scheduleTaskFetch(s, s.Placeholders())
	return s, nil
}

// Close discards the board of sprintID; fetches still running for it are
// cancelled and their results dropped.
func (c *Coordinator) Close(sprintID int64) {
	c.mu.Lock()
	s, ok := c.sessions[sprintID]
	delete(c.sessions, sprintID)
	c.mu.Unlock()
	if ok {
		s.close()
	}
}

// Shutdown closes every board and waits for background work.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for id, s := range c.sessions {
		sessions = append(sessions, s)
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	c.wg.Wait()
}

// Wait blocks until background task and user fetches have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()
	for _, s := range sessions {
		s.resolver.Wait()
	}
}

// Refresh reloads the sprint record, its tasks and members from the store.
func (c *Coordinator) Refresh(ctx context.Context, sprintID int64) (*Session, error) {
	s, err := c.Open(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	// The record is read and applied under the sprint lock so a move
	// committed meanwhile is never replaced by an older record.
	err = c.locks.Do(lock.SprintKey(sprintID), func() error {
		sprint, err := c.getSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		s.reload(sprint, c.prefetchTasks(ctx, sprint))
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.loadMembers(ctx, s)

	c.scheduleTaskFetch(s, s.Placeholders())
	return s, nil
}

// SetTagNames swaps the well-known tag names and rebuilds the catalogs of
// the open boards.
func (c *Coordinator) SetTagNames(ctx context.Context, names TagNames) {
	c.mu.Lock()
	c.names = names
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.setCatalog(c.catalogFor(ctx, s.Sprint().TeamID, names))
	}
}

// AssigneeView is the resolved assignee of one card.
type AssigneeView struct {
	resolver.Resolution
	Display string `json:"display"`
}

// View is what a client renders for a sprint board.
type View struct {
	Sprint    models.Sprint           `json:"sprint"`
	EndDate   *time.Time              `json:"end_date,omitempty"`
	Buckets   Buckets                 `json:"buckets"`
	Assignees map[string]AssigneeView `json:"assignees"`
	Version   uint64                  `json:"version"`
}

// Board builds the view of sprintID. Assignees are resolved with pure reads;
// fetches for the stubs are scheduled only after the view is complete.
func (c *Coordinator) Board(ctx context.Context, sprintID int64) (View, error) {
	s, err := c.Open(ctx, sprintID)
	if err != nil {
		return View{}, err
	}

	sprint, buckets, version := s.Snapshot()
	view := View{
		Sprint:    sprint,
		EndDate:   sprint.EndDate(),
		Buckets:   buckets,
		Assignees: make(map[string]AssigneeView, buckets.Len()),
		Version:   version,
	}

	var pending []string
	for _, col := range [][]Card{buckets.Todo, buckets.InProgress, buckets.Done} {
		for _, card := range col {
			res := s.resolver.Resolve(card.Assignee)
			view.Assignees[card.ID] = AssigneeView{Resolution: res, Display: resolver.DisplayName(res)}
			pending = append(pending, s.resolver.Pending(card.Assignee)...)
		}
	}

	s.resolver.ScheduleUserFetch(pending)
	c.scheduleTaskFetch(s, buckets.Placeholders())
	return view, nil
}

// MoveTask moves a task to the column of status. The sprint record is
// persisted first; the local columns change only after the store accepted it.
func (c *Coordinator) MoveTask(ctx context.Context, sprintID int64, taskID any, status string) (Card, error) {
	const op = "move task"

	key := ids.Key(taskID)
	if _, err := ids.ParseInt(key); err != nil {
		return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "task id is malformed", Err: ErrMalformedID})
	}
	target, ok := models.BucketForStatus(status)
	if !ok {
		return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "unknown status " + strconv.Quote(status), Err: ErrInvalidStatus})
	}

	s, err := c.Open(ctx, sprintID)
	if err != nil {
		return Card{}, c.fail(ctx, sprintID, err)
	}

	c.locks.Lock(lock.TaskKey(sprintID, key))
	defer c.locks.Unlock(lock.TaskKey(sprintID, key))

	current, ok := s.Locate(key)
	if !ok {
		return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "task " + key + " is not in this sprint", Err: ErrTaskNotInSprint})
	}
	if current.Status == status {
		return current, nil
	}

	var card Card
	err = c.locks.Do(lock.SprintKey(sprintID), func() error {
		next := MoveID(s.Sprint().TaskIDs, key, target)
		updated, err := c.sprints.UpdateSprint(ctx, sprintID, models.SprintPatch{TaskIDs: next})
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		card = s.commitMove(updated, key, status)
		return nil
	})
	if err != nil {
		return Card{}, c.fail(ctx, sprintID, err)
	}

	c.log.Infow("task moved", "sprint_id", sprintID, "task_id", key, "from", current.Status, "to", status)
	c.notify(ctx, sprintID, "task moved", card)
	return card, nil
}

// MoveID removes id from every bucket holding it and appends it to target.
// Each list keeps its representation.
func MoveID(taskIDs models.TaskIDs, id, target string) models.TaskIDs {
	next := taskIDs.Clone()
	for _, key := range models.BucketKeys {
		if list, ok := next[key]; ok && list.Contains(id) {
			next[key] = list.Without(id)
		}
	}
	next[target] = next[target].With(id)
	return next
}

// AssignTask replaces the assignee list of a task. The value keeps the
// representation it had in the task's tag values.
func (c *Coordinator) AssignTask(ctx context.Context, sprintID int64, taskID any, assignee any) (Card, error) {
	const op = "assign task"

	users := ids.Unique(ids.Normalize(assignee))
	for _, u := range users {
		if _, err := ids.ParseInt(u); err != nil {
			return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "assignee id " + strconv.Quote(u) + " is malformed", Err: ErrMalformedID})
		}
	}

	card, err := c.mutateTask(ctx, sprintID, taskID, op, func(s *Session, task models.Task) (models.TaskPatch, error) {
		cat := s.Catalog()
		if cat.Assignee == "" {
			joined := strings.Join(users, ",")
			return models.TaskPatch{Assignee: &joined}, nil
		}
		value := cat.AssigneeValue(task).Replace(users)
		return models.TaskPatch{TagValues: map[string]any{cat.Assignee: value.Value()}}, nil
	})
	if err != nil {
		return Card{}, err
	}

	if s, err := c.Open(ctx, sprintID); err == nil {
		s.resolver.ScheduleUserFetch(s.resolver.Pending(users))
	}
	return card, nil
}

// AddAttachment links a file to a task.
func (c *Coordinator) AddAttachment(ctx context.Context, sprintID int64, taskID any, att models.Attachment) (Card, error) {
	const op = "add attachment"

	att.Name = strings.TrimSpace(att.Name)
	att.URL = strings.TrimSpace(att.URL)
	if att.Name == "" || att.URL == "" {
		return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "attachment name and url are required"})
	}
	att.ID = uuid.NewString()
	att.AddedAt = time.Now().UTC()

	return c.mutateTask(ctx, sprintID, taskID, op, func(_ *Session, task models.Task) (models.TaskPatch, error) {
		list := make([]models.Attachment, 0, len(task.Attachments)+1)
		list = append(list, task.Attachments...)
		list = append(list, att)
		return models.TaskPatch{Attachments: &list}, nil
	})
}

// RemoveAttachment unlinks a file from a task.
func (c *Coordinator) RemoveAttachment(ctx context.Context, sprintID int64, taskID any, attachmentID string) (Card, error) {
	const op = "remove attachment"

	return c.mutateTask(ctx, sprintID, taskID, op, func(_ *Session, task models.Task) (models.TaskPatch, error) {
		list := make([]models.Attachment, 0, len(task.Attachments))
		found := false
		for _, a := range task.Attachments {
			if a.ID == attachmentID {
				found = true
				continue
			}
			list = append(list, a)
		}
		if !found {
			return models.TaskPatch{}, &ValidationError{Op: op, Reason: "attachment " + attachmentID + " is not on this task"}
		}
		return models.TaskPatch{Attachments: &list}, nil
	})
}

// StartSprint moves a planned sprint to ACTIVE.
func (c *Coordinator) StartSprint(ctx context.Context, sprintID int64) (models.Sprint, error) {
	return c.transition(ctx, sprintID, "start sprint",
		[]models.SprintStatus{models.SprintPlanning, models.SprintPending}, c.sprints.StartSprint)
}

// CompleteSprint moves an active sprint to COMPLETED.
func (c *Coordinator) CompleteSprint(ctx context.Context, sprintID int64) (models.Sprint, error) {
	return c.transition(ctx, sprintID, "complete sprint",
		[]models.SprintStatus{models.SprintActive, models.SprintRetrospective}, c.sprints.CompleteSprint)
}

// UpdateRetrospective stores the retrospective notes of a sprint.
func (c *Coordinator) UpdateRetrospective(ctx context.Context, sprintID int64, wentWell, toImprove []string) (models.Sprint, error) {
	const op = "update retrospective"

	s, err := c.Open(ctx, sprintID)
	if err != nil {
		return models.Sprint{}, c.fail(ctx, sprintID, err)
	}

	wentWell, toImprove = cleanNotes(wentWell), cleanNotes(toImprove)
	var updated models.Sprint
	err = c.locks.Do(lock.SprintKey(sprintID), func() error {
		var err error
		updated, err = c.sprints.UpdateSprint(ctx, sprintID, models.SprintPatch{WhatWentWell: &wentWell, ToImprove: &toImprove})
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		s.setSprint(updated)
		return nil
	})
	if err != nil {
		return models.Sprint{}, c.fail(ctx, sprintID, err)
	}
	c.notify(ctx, sprintID, "retrospective updated", updated)
	return updated, nil
}

func (c *Coordinator) transition(ctx context.Context, sprintID int64, op string, from []models.SprintStatus,
	persist func(context.Context, int64) (models.Sprint, error)) (models.Sprint, error) {
	s, err := c.Open(ctx, sprintID)
	if err != nil {
		return models.Sprint{}, c.fail(ctx, sprintID, err)
	}

	var updated models.Sprint
	err = c.locks.Do(lock.SprintKey(sprintID), func() error {
		current := s.Sprint().Status
		allowed := false
		for _, st := range from {
			allowed = allowed || st == current
		}
		if !allowed {
			return &ValidationError{Op: op, Reason: "sprint is " + string(current), Err: ErrInvalidTransition}
		}
		var err error
		updated, err = persist(ctx, sprintID)
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		s.setSprint(updated)
		return nil
	})
	if err != nil {
		return models.Sprint{}, c.fail(ctx, sprintID, err)
	}

	c.log.Infow("sprint status changed", "sprint_id", sprintID, "status", updated.Status)
	c.notify(ctx, sprintID, "sprint "+strings.ToLower(string(updated.Status)), updated)
	return updated, nil
}

// mutateTask runs a task-record mutation: locate the task on the board,
// build the patch, persist it, then refresh the card.
func (c *Coordinator) mutateTask(ctx context.Context, sprintID int64, taskID any, op string,
	build func(*Session, models.Task) (models.TaskPatch, error)) (Card, error) {
	key := ids.Key(taskID)
	n, err := ids.ParseInt(key)
	if err != nil {
		return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "task id is malformed", Err: ErrMalformedID})
	}

	s, err := c.Open(ctx, sprintID)
	if err != nil {
		return Card{}, c.fail(ctx, sprintID, err)
	}

	c.locks.Lock(lock.TaskKey(sprintID, key))
	defer c.locks.Unlock(lock.TaskKey(sprintID, key))

	if _, ok := s.Locate(key); !ok {
		return Card{}, c.fail(ctx, sprintID, &ValidationError{Op: op, Reason: "task " + key + " is not in this sprint", Err: ErrTaskNotInSprint})
	}

	task, ok := s.Task(key)
	if !ok {
		task, err = c.fetchTask(ctx, sprintID, key, n)
		if err != nil {
			return Card{}, c.fail(ctx, sprintID, err)
		}
	}

	patch, err := build(s, task)
	if err != nil {
		return Card{}, c.fail(ctx, sprintID, err)
	}

	updated, err := c.tasks.UpdateTask(ctx, n, patch)
	if err != nil {
		return Card{}, c.fail(ctx, sprintID, &PersistenceError{Op: op, Err: err})
	}

	card := s.commitTask(updated)
	c.log.Infow(op, "sprint_id", sprintID, "task_id", key)
	c.notify(ctx, sprintID, op, card)
	return card, nil
}

func (c *Coordinator) load(ctx context.Context, sprintID int64, names TagNames) (*Session, error) {
	sprint, err := c.getSprint(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	catalog := c.catalogFor(ctx, sprint.TeamID, names)
	tasks := c.prefetchTasks(ctx, sprint)

	log := c.log.With("sprint_id", sprintID)
	res := resolver.New(c.dir, c.users, log.Named("resolver"), c.opts.Resolver)
	s := newSession(sprint, NewTaskCache(tasks...), catalog, res, log)
	c.loadMembers(ctx, s)
	return s, nil
}

func (c *Coordinator) getSprint(ctx context.Context, sprintID int64) (models.Sprint, error) {
	sprint, err := c.sprints.GetSprint(ctx, sprintID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Sprint{}, &NotFoundError{Kind: "sprint", ID: strconv.FormatInt(sprintID, 10), Err: err}
	}
	if err != nil {
		return models.Sprint{}, &PersistenceError{Op: "load sprint", Err: err}
	}
	return sprint, nil
}

func (c *Coordinator) catalogFor(ctx context.Context, teamID int64, names TagNames) Catalog {
	tags, err := c.tags.ListTags(ctx, teamID)
	if err != nil {
		c.log.Warnw("tag catalog unavailable, using legacy task fields", "team_id", teamID, "error", err)
		return Catalog{}
	}
	return NewCatalog(tags, names)
}

// prefetchTasks loads every task of the sprint in one call. Tasks it cannot
// load stay placeholders and are fetched one by one in the background.
func (c *Coordinator) prefetchTasks(ctx context.Context, sprint models.Sprint) []models.Task {
	var keys []int64
	seen := make(map[string]struct{})
	for _, bucket := range models.BucketKeys {
		for _, id := range ids.Normalize(sprint.TaskIDs[bucket]) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			n, err := ids.ParseInt(id)
			if err != nil {
				c.log.Warnw("skipping malformed task id", "sprint_id", sprint.ID, "task_id", id)
				continue
			}
			keys = append(keys, n)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	tasks, err := c.tasks.GetTasks(ctx, keys)
	if err != nil {
		c.log.Warnw("task prefetch failed", "sprint_id", sprint.ID, "error", err)
		return nil
	}
	return tasks
}

func (c *Coordinator) loadMembers(ctx context.Context, s *Session) {
	members, err := c.roles.ListMembers(ctx, s.SprintID())
	if err != nil {
		c.log.Warnw("member list unavailable", "sprint_id", s.SprintID(), "error", err)
		return
	}
	s.setMembers(members)
}

// fetchTask loads one task. Concurrent fetches of the same task for the
// same board share a call, and with it the caller's context; boards never
// share one.
func (c *Coordinator) fetchTask(ctx context.Context, sprintID int64, key string, id int64) (models.Task, error) {
	v, err, _ := c.taskGroup.Do(taskFetchKey(sprintID, key), func() (any, error) {
		return c.tasks.GetTask(ctx, id)
	})
	if errors.Is(err, models.ErrNotFound) {
		return models.Task{}, &NotFoundError{Kind: "task", ID: key, Err: err}
	}
	if err != nil {
		return models.Task{}, &PersistenceError{Op: "load task", Err: err}
	}
	return v.(models.Task), nil
}

func taskFetchKey(sprintID int64, key string) string {
	return strconv.FormatInt(sprintID, 10) + ":" + key
}

// scheduleTaskFetch resolves placeholder cards in the background. Each id
// has at most one fetch in flight per board; a failed fetch leaves the
// placeholder for the next pass.
func (c *Coordinator) scheduleTaskFetch(s *Session, keys []string) {
	for _, key := range ids.Unique(keys) {
		n, err := ids.ParseInt(key)
		if err != nil || !s.markInflight(key) {
			continue
		}
		c.wg.Add(1)
		go func(key string, n int64) {
			defer c.wg.Done()
			defer s.clearInflight(key)

			ctx, cancel := context.WithTimeout(s.ctx, c.opts.FetchTimeout)
			defer cancel()

			task, err := c.fetchTask(ctx, s.sprintID, key, n)
			if err != nil {
				if s.ctx.Err() == nil {
					s.log.Warnw("background task fetch failed", "task_id", key, "error", err)
				}
				return
			}
			s.putTask(task)
		}(key, n)
	}
}

// fail logs err and emits the single error notice of a failed action.
func (c *Coordinator) fail(ctx context.Context, sprintID int64, err error) error {
	var persist *PersistenceError
	if errors.As(err, &persist) {
		c.log.Errorw("mutation failed", "sprint_id", sprintID, "error", err, "type", "technical")
	} else {
		c.log.Infow("mutation rejected", "sprint_id", sprintID, "error", err, "type", "business")
	}
	c.notifier.Notify(ctx, Notice{
		Kind:     NoticeError,
		SprintID: sprintID,
		Code:     Code(err),
		Message:  Message(err),
	})
	return err
}

func (c *Coordinator) notify(ctx context.Context, sprintID int64, message string, payload any) {
	c.notifier.Notify(ctx, Notice{Kind: NoticeBoard, SprintID: sprintID, Message: message, Payload: payload})
}

func cleanNotes(notes []string) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

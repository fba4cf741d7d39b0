package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sprintboard/internal/models"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store with per-method failure injection.
type memStore struct {
	mu      sync.Mutex
	sprints map[int64]models.Sprint
	tasks   map[int64]models.Task
	users   map[int64]models.User
	tags    map[int64][]models.Tag
	roles   map[int64]models.AgileRole
	members map[int64]models.AgileMember
	nextID  int64

	failOn    map[string]error
	calls     map[string]int
	taskDelay time.Duration

	sprintGate chan struct{}
	sprintRead chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		sprints: make(map[int64]models.Sprint),
		tasks:   make(map[int64]models.Task),
		users:   make(map[int64]models.User),
		tags:    make(map[int64][]models.Tag),
		roles:   make(map[int64]models.AgileRole),
		members: make(map[int64]models.AgileMember),
		nextID:  1000,
		failOn:  make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (m *memStore) fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, method)
		return
	}
	m.failOn[method] = err
}

func (m *memStore) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter records a call and returns the injected failure; the caller holds m.mu.
func (m *memStore) enter(method string) error {
	m.calls[method]++
	return m.failOn[method]
}

func (m *memStore) putSprint(s models.Sprint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sprints[s.ID] = s
}

func (m *memStore) putTask(tasks ...models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
}

func (m *memStore) putTags(teamID int64, tags ...models.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[teamID] = append(m.tags[teamID], tags...)
}

func (m *memStore) sprint(id int64) models.Sprint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sprints[id]
}

func (m *memStore) task(id int64) models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

// holdNextSprintRead makes the next GetSprint stop after it has read the
// record; read is closed at that point and release lets it return.
func (m *memStore) holdNextSprintRead() (read <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sprintGate = make(chan struct{})
	m.sprintRead = make(chan struct{})
	gate := m.sprintGate
	return m.sprintRead, func() { close(gate) }
}

func (m *memStore) GetSprint(_ context.Context, id int64) (models.Sprint, error) {
	m.mu.Lock()
	err := m.enter("GetSprint")
	s, ok := m.sprints[id]
	gate, read := m.sprintGate, m.sprintRead
	m.sprintGate, m.sprintRead = nil, nil
	m.mu.Unlock()

	if gate != nil {
		close(read)
		<-gate
	}
	if err != nil {
		return models.Sprint{}, err
	}
	if !ok {
		return models.Sprint{}, fmt.Errorf("sprint %d: %w", id, models.ErrNotFound)
	}
	return s, nil
}

func (m *memStore) UpdateSprint(_ context.Context, id int64, patch models.SprintPatch) (models.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateSprint"); err != nil {
		return models.Sprint{}, err
	}
	s, ok := m.sprints[id]
	if !ok {
		return models.Sprint{}, models.ErrNotFound
	}
	if patch.TaskIDs != nil {
		s.TaskIDs = patch.TaskIDs.Clone()
	}
	if patch.WhatWentWell != nil {
		s.WhatWentWell = *patch.WhatWentWell
	}
	if patch.ToImprove != nil {
		s.ToImprove = *patch.ToImprove
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	m.sprints[id] = s
	return s, nil
}

func (m *memStore) setStatus(method string, id int64, status models.SprintStatus) (models.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(method); err != nil {
		return models.Sprint{}, err
	}
	s, ok := m.sprints[id]
	if !ok {
		return models.Sprint{}, models.ErrNotFound
	}
	s.Status = status
	m.sprints[id] = s
	return s, nil
}

func (m *memStore) StartSprint(_ context.Context, id int64) (models.Sprint, error) {
	return m.setStatus("StartSprint", id, models.SprintActive)
}

func (m *memStore) CompleteSprint(_ context.Context, id int64) (models.Sprint, error) {
	return m.setStatus("CompleteSprint", id, models.SprintCompleted)
}

func (m *memStore) GetTask(ctx context.Context, id int64) (models.Task, error) {
	m.mu.Lock()
	err := m.enter("GetTask")
	t, ok := m.tasks[id]
	delay := m.taskDelay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.Task{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Task{}, err
	}
	if !ok {
		return models.Task{}, models.ErrNotFound
	}
	return t, nil
}

func (m *memStore) GetTasks(_ context.Context, keys []int64) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetTasks"); err != nil {
		return nil, err
	}
	var out []models.Task
	for _, k := range keys {
		if t, ok := m.tasks[k]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateTask(_ context.Context, id int64, patch models.TaskPatch) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateTask"); err != nil {
		return models.Task{}, err
	}
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, models.ErrNotFound
	}
	if patch.Assignee != nil {
		t.Assignee = *patch.Assignee
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.TagValues != nil {
		values := make(map[string]any, len(t.TagValues)+len(patch.TagValues))
		for k, v := range t.TagValues {
			values[k] = v
		}
		for k, v := range patch.TagValues {
			if v == nil {
				delete(values, k)
				continue
			}
			values[k] = v
		}
		t.TagValues = values
	}
	if patch.Attachments != nil {
		t.Attachments = *patch.Attachments
	}
	m.tasks[id] = t
	return t, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetUser"); err != nil {
		return models.User{}, err
	}
	u, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

func (m *memStore) ListTags(_ context.Context, teamID int64) ([]models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListTags"); err != nil {
		return nil, err
	}
	return append([]models.Tag(nil), m.tags[teamID]...), nil
}

func (m *memStore) ListRoles(_ context.Context, teamID int64) ([]models.AgileRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRoles"); err != nil {
		return nil, err
	}
	var out []models.AgileRole
	for _, r := range m.roles {
		if r.TeamID == teamID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateRole(_ context.Context, role models.AgileRole) (models.AgileRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateRole"); err != nil {
		return models.AgileRole{}, err
	}
	for _, r := range m.roles {
		if r.TeamID == role.TeamID && strings.EqualFold(r.Name, role.Name) {
			return models.AgileRole{}, errors.New("UNIQUE constraint failed: agile_roles.name")
		}
	}
	m.nextID++
	role.ID = m.nextID
	m.roles[role.ID] = role
	return role, nil
}

func (m *memStore) UpdateRole(_ context.Context, id int64, name, description string) (models.AgileRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateRole"); err != nil {
		return models.AgileRole{}, err
	}
	r, ok := m.roles[id]
	if !ok {
		return models.AgileRole{}, models.ErrNotFound
	}
	r.Name, r.Description = name, description
	m.roles[id] = r
	return r, nil
}

func (m *memStore) DeleteRole(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteRole"); err != nil {
		return err
	}
	delete(m.roles, id)
	return nil
}

func (m *memStore) GetRole(_ context.Context, id int64) (models.AgileRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRole"); err != nil {
		return models.AgileRole{}, err
	}
	r, ok := m.roles[id]
	if !ok {
		return models.AgileRole{}, models.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListMembers(_ context.Context, agileID int64) ([]models.AgileMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListMembers"); err != nil {
		return nil, err
	}
	var out []models.AgileMember
	for _, mem := range m.members {
		if mem.AgileID == agileID {
			if u, ok := m.users[mem.UserID]; ok {
				mem.UserName, mem.UserAvatar = u.Name, u.Avatar
			}
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memStore) FindMember(_ context.Context, agileID, userID int64) (models.AgileMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindMember"); err != nil {
		return models.AgileMember{}, err
	}
	for _, mem := range m.members {
		if mem.AgileID == agileID && mem.UserID == userID {
			return mem, nil
		}
	}
	return models.AgileMember{}, models.ErrNotFound
}

func (m *memStore) CreateMember(_ context.Context, member models.AgileMember) (models.AgileMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateMember"); err != nil {
		return models.AgileMember{}, err
	}
	m.nextID++
	member.ID = m.nextID
	m.members[member.ID] = member
	return member, nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, id, roleID int64) (models.AgileMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateMemberRole"); err != nil {
		return models.AgileMember{}, err
	}
	mem, ok := m.members[id]
	if !ok {
		return models.AgileMember{}, models.ErrNotFound
	}
	mem.RoleID = roleID
	m.members[id] = mem
	return mem, nil
}

func (m *memStore) DeleteMember(_ context.Context, agileID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteMember"); err != nil {
		return err
	}
	for id, mem := range m.members {
		if mem.AgileID == agileID && mem.UserID == userID {
			delete(m.members, id)
			return nil
		}
	}
	return models.ErrNotFound
}

// recorder collects notices.
type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) errors() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, n := range r.notices {
		if n.Kind == NoticeError {
			out = append(out, n)
		}
	}
	return out
}

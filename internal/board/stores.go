package board

import (
	"context"

	"sprintboard/internal/models"
)

// SprintStore is the remote sprint collaborator.
type SprintStore interface {
	GetSprint(ctx context.Context, id int64) (models.Sprint, error)
	UpdateSprint(ctx context.Context, id int64, patch models.SprintPatch) (models.Sprint, error)
	StartSprint(ctx context.Context, id int64) (models.Sprint, error)
	CompleteSprint(ctx context.Context, id int64) (models.Sprint, error)
}

// TaskStore is the remote task collaborator.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (models.Task, error)
	GetTasks(ctx context.Context, ids []int64) ([]models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (models.Task, error)
}

// UserStore is the remote user collaborator.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// RoleStore is the remote role and member collaborator.
type RoleStore interface {
	ListRoles(ctx context.Context, teamID int64) ([]models.AgileRole, error)
	CreateRole(ctx context.Context, role models.AgileRole) (models.AgileRole, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (models.AgileRole, error)
	DeleteRole(ctx context.Context, id int64) error
	GetRole(ctx context.Context, id int64) (models.AgileRole, error)
	ListMembers(ctx context.Context, agileID int64) ([]models.AgileMember, error)
	FindMember(ctx context.Context, agileID, userID int64) (models.AgileMember, error)
	CreateMember(ctx context.Context, member models.AgileMember) (models.AgileMember, error)
	UpdateMemberRole(ctx context.Context, id, roleID int64) (models.AgileMember, error)
	DeleteMember(ctx context.Context, agileID, userID int64) error
}

// TagCatalog is the read-only tag lookup table.
type TagCatalog interface {
	ListTags(ctx context.Context, teamID int64) ([]models.Tag, error)
}

// Store bundles every collaborator; the sqlite store satisfies it.
type Store interface {
	SprintStore
	TaskStore
	UserStore
	RoleStore
	TagCatalog
}

// Notice kinds.
const (
	NoticeError = "error"
	NoticeBoard = "board"
)

// Notice is a toast or board event delivered to the clients of a sprint,
// or of a team when SprintID is zero.
type Notice struct {
	Kind     string `json:"kind"`
	SprintID int64  `json:"sprint_id,omitempty"`
	TeamID   int64  `json:"team_id,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Payload  any    `json:"payload,omitempty"`
}

// Notifier delivers notices; the realtime hub implements it.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) {}

package models

import (
	"errors"
	"time"

	"sprintboard/internal/ids"
)

// ErrNotFound is wrapped by stores when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// SprintStatus is the lifecycle state of a sprint.
type SprintStatus string

const (
	SprintPlanning      SprintStatus = "PLANNING"
	SprintPending       SprintStatus = "PENDING"
	SprintActive        SprintStatus = "ACTIVE"
	SprintRetrospective SprintStatus = "RETROSPECTIVE"
	SprintCompleted     SprintStatus = "COMPLETED"
)

// Valid reports whether s is a known sprint status.
func (s SprintStatus) Valid() bool {
	switch s {
	case SprintPlanning, SprintPending, SprintActive, SprintRetrospective, SprintCompleted:
		return true
	}
	return false
}

// Task status tags used by the board columns.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Keys of a sprint's task_ids map.
const (
	BucketToDo       = "ToDo"
	BucketInProgress = "InProgress"
	BucketDone       = "Done"
)

// BucketKeys lists the task_ids keys in processing order.
var BucketKeys = []string{BucketToDo, BucketInProgress, BucketDone}

// ValidTaskStatuses enumerates the statuses supported by the board columns.
var ValidTaskStatuses = map[string]struct{}{
	StatusTodo:       {},
	StatusInProgress: {},
	StatusDone:       {},
}

// BucketForStatus maps a status tag to its task_ids key.
func BucketForStatus(status string) (string, bool) {
	switch status {
	case StatusTodo:
		return BucketToDo, true
	case StatusInProgress:
		return BucketInProgress, true
	case StatusDone:
		return BucketDone, true
	}
	return "", false
}

// StatusForBucket maps a task_ids key to its status tag.
func StatusForBucket(key string) string {
	switch key {
	case BucketInProgress:
		return StatusInProgress
	case BucketDone:
		return StatusDone
	default:
		return StatusTodo
	}
}

// TaskIDs holds the raw task identifier list of each board bucket.
type TaskIDs map[string]ids.List

// Clone returns a shallow copy; ids.List values are immutable.
func (t TaskIDs) Clone() TaskIDs {
	out := make(TaskIDs, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Sprint is a time-boxed unit of work with bucketed task assignment.
type Sprint struct {
	ID           int64        `json:"id" yaml:"id"`
	TeamID       int64        `json:"team_id" yaml:"team_id"`
	Name         string       `json:"name" yaml:"name"`
	Status       SprintStatus `json:"status" yaml:"status"`
	StartDate    *time.Time   `json:"start_date,omitempty" yaml:"start_date"`
	Duration     int          `json:"duration" yaml:"duration"`
	Goal         string       `json:"goal" yaml:"goal"`
	TaskIDs      TaskIDs      `json:"task_ids" yaml:"-"`
	WhatWentWell []string     `json:"what_went_well" yaml:"what_went_well"`
	ToImprove    []string     `json:"to_improve" yaml:"to_improve"`
	CreatedBy    int64        `json:"created_by" yaml:"created_by"`
	CreatedAt    time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"-"`
}

// EndDate returns the start date plus the sprint duration in weeks.
func (s Sprint) EndDate() *time.Time {
	if s.StartDate == nil || s.Duration <= 0 {
		return nil
	}
	end := s.StartDate.AddDate(0, 0, 7*s.Duration)
	return &end
}

// SprintPatch carries the fields of a partial sprint update.
type SprintPatch struct {
	Name         *string
	Status       *SprintStatus
	StartDate    *time.Time
	Duration     *int
	Goal         *string
	TaskIDs      TaskIDs
	WhatWentWell *[]string
	ToImprove    *[]string
}

// Attachment is a file reference linked to a task.
type Attachment struct {
	ID      string    `json:"id" yaml:"id"`
	Name    string    `json:"name" yaml:"name"`
	URL     string    `json:"url" yaml:"url"`
	AddedBy int64     `json:"added_by" yaml:"added_by"`
	AddedAt time.Time `json:"added_at" yaml:"-"`
}

// Task represents a single card in the sprint board. TagValues overlays the
// legacy flat fields with user-defined values keyed by tag id.
type Task struct {
	ID          int64          `json:"id" yaml:"id"`
	TeamID      int64          `json:"team_id" yaml:"team_id"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Status      string         `json:"status" yaml:"status"`
	Assignee    string         `json:"assignee" yaml:"assignee"`
	TagValues   map[string]any `json:"tag_values" yaml:"tag_values"`
	Attachments []Attachment   `json:"attachments" yaml:"attachments"`
	CreatedAt   time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"-"`
}

// TaskPatch carries the fields of a partial task update. TagValues entries
// are merged into the existing map; a nil value removes the entry.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Assignee    *string
	TagValues   map[string]any
	Attachments *[]Attachment
}

// Tag is a catalog entry naming a user-defined task field.
type Tag struct {
	ID     int64  `json:"id" yaml:"id"`
	TeamID int64  `json:"team_id" yaml:"team_id"`
	Name   string `json:"name" yaml:"name"`
}

// User is the minimal user record the board displays.
type User struct {
	ID     int64  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Avatar string `json:"avatar" yaml:"avatar"`
}

// AgileRole is a team-scoped role such as "Scrum Master".
type AgileRole struct {
	ID          int64     `json:"id" yaml:"id"`
	TeamID      int64     `json:"team_id" yaml:"team_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	CreatedBy   int64     `json:"created_by" yaml:"created_by"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// AgileMember links a role to a user within one sprint.
type AgileMember struct {
	ID         int64     `json:"id"`
	AgileID    int64     `json:"agile_id"`
	RoleID     int64     `json:"role_id"`
	UserID     int64     `json:"user_id"`
	UserName   string    `json:"user_name"`
	UserAvatar string    `json:"user_avatar"`
	CreatedAt  time.Time `json:"created_at"`
}

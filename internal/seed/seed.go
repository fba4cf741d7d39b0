// Package seed loads demo fixtures from YAML into the store.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sprintboard/internal/ids"
	"sprintboard/internal/logger"
	"sprintboard/internal/models"
)

// Store is the subset of the sqlite store the fixtures are written to.
type Store interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	CreateTag(ctx context.Context, t models.Tag) (models.Tag, error)
	CreateTask(ctx context.Context, t models.Task) (models.Task, error)
	CreateSprint(ctx context.Context, sp models.Sprint) (models.Sprint, error)
	CreateRole(ctx context.Context, role models.AgileRole) (models.AgileRole, error)
	CreateMember(ctx context.Context, member models.AgileMember) (models.AgileMember, error)
}

// Sprint is a sprint fixture. Task ids are given per bucket in any of the
// accepted shapes: "1,2", [1, 2] or a bare number.
type Sprint struct {
	models.Sprint `yaml:",inline"`
	TaskIDs       map[string]any `yaml:"task_ids"`
}

type Member struct {
	SprintID int64 `yaml:"sprint_id"`
	UserID   int64 `yaml:"user_id"`
	RoleID   int64 `yaml:"role_id"`
}

// Fixtures is the content of a seed file.
type Fixtures struct {
	Users   []models.User      `yaml:"users"`
	Tags    []models.Tag       `yaml:"tags"`
	Tasks   []models.Task      `yaml:"tasks"`
	Sprints []Sprint           `yaml:"sprints"`
	Roles   []models.AgileRole `yaml:"roles"`
	Members []Member           `yaml:"members"`
}

// Summary counts the records written by Apply.
type Summary struct {
	Users, Tags, Tasks, Sprints, Roles, Members int
}

// Load reads and decodes a fixture file.
func Load(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}

	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	return &f, nil
}

// Apply writes the fixtures in dependency order and stops at the first error.
func (f *Fixtures) Apply(ctx context.Context, store Store, log *logger.Logger) (Summary, error) {
	if log == nil {
		log = logger.Nop()
	}
	var sum Summary

	for _, u := range f.Users {
		if _, err := store.CreateUser(ctx, u); err != nil {
			return sum, fmt.Errorf("seed user %q: %w", u.Name, err)
		}
		sum.Users++
	}
	for _, t := range f.Tags {
		if _, err := store.CreateTag(ctx, t); err != nil {
			return sum, fmt.Errorf("seed tag %q: %w", t.Name, err)
		}
		sum.Tags++
	}
	for _, t := range f.Tasks {
		if _, err := store.CreateTask(ctx, t); err != nil {
			return sum, fmt.Errorf("seed task %q: %w", t.Title, err)
		}
		sum.Tasks++
	}
	for _, sp := range f.Sprints {
		sprint := sp.Sprint
		sprint.TaskIDs = make(models.TaskIDs, len(sp.TaskIDs))
		for key, raw := range sp.TaskIDs {
			sprint.TaskIDs[key] = ids.ParseList(raw)
		}
		if _, err := store.CreateSprint(ctx, sprint); err != nil {
			return sum, fmt.Errorf("seed sprint %q: %w", sprint.Name, err)
		}
		sum.Sprints++
	}
	for _, r := range f.Roles {
		if _, err := store.CreateRole(ctx, r); err != nil {
			return sum, fmt.Errorf("seed role %q: %w", r.Name, err)
		}
		sum.Roles++
	}
	for _, m := range f.Members {
		member := models.AgileMember{AgileID: m.SprintID, UserID: m.UserID, RoleID: m.RoleID}
		if _, err := store.CreateMember(ctx, member); err != nil {
			return sum, fmt.Errorf("seed member %d of sprint %d: %w", m.UserID, m.SprintID, err)
		}
		sum.Members++
	}

	log.Infow("fixtures applied",
		"users", sum.Users, "tags", sum.Tags, "tasks", sum.Tasks,
		"sprints", sum.Sprints, "roles", sum.Roles, "members", sum.Members)
	return sum, nil
}

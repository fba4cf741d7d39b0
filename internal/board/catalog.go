package board

import (
	"fmt"
	"strconv"
	"strings"

	"sprintboard/internal/ids"
	"sprintboard/internal/models"
)

// TagNames are the well-known catalog names of the built-in task fields.
type TagNames struct {
	Name        string `yaml:"name" env:"BOARD_TAG_NAME" env-default:"name"`
	Status      string `yaml:"status" env:"BOARD_TAG_STATUS" env-default:"status"`
	Description string `yaml:"description" env:"BOARD_TAG_DESCRIPTION" env-default:"description"`
	Assignee    string `yaml:"assignee" env:"BOARD_TAG_ASSIGNEE" env-default:"assignee"`
}

// DefaultTagNames returns the names used when nothing is configured.
func DefaultTagNames() TagNames {
	return TagNames{Name: "name", Status: "status", Description: "description", Assignee: "assignee"}
}

// Catalog maps the built-in task fields to the tag ids of one team.
// An empty id means the team has no such tag.
type Catalog struct {
	Name        string
	Status      string
	Description string
	Assignee    string
}

// NewCatalog resolves names against tags, matching case-insensitively.
func NewCatalog(tags []models.Tag, names TagNames) Catalog {
	byName := make(map[string]string, len(tags))
	for _, t := range tags {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if _, dup := byName[key]; !dup {
			byName[key] = strconv.FormatInt(t.ID, 10)
		}
	}
	find := func(name string) string {
		return byName[strings.ToLower(strings.TrimSpace(name))]
	}
	return Catalog{
		Name:        find(names.Name),
		Status:      find(names.Status),
		Description: find(names.Description),
		Assignee:    find(names.Assignee),
	}
}

// Card is the board projection of a task.
type Card struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      string              `json:"status"`
	Assignee    []string            `json:"assignee"`
	Attachments []models.Attachment `json:"attachments"`
	Placeholder bool                `json:"placeholder,omitempty"`
}

// Project builds the card for task, overlaying tag values on the legacy
// fields, and tags it with the status of the bucket it sits in.
func (c Catalog) Project(task models.Task, status string) Card {
	card := Card{
		ID:          strconv.FormatInt(task.ID, 10),
		Title:       task.Title,
		Description: task.Description,
		Status:      status,
		Assignee:    ids.Normalize(task.Assignee),
		Attachments: make([]models.Attachment, len(task.Attachments)),
	}
	copy(card.Attachments, task.Attachments)
	if v, ok := c.text(task, c.Name); ok {
		card.Title = v
	}
	if v, ok := c.text(task, c.Description); ok {
		card.Description = v
	}
	if c.Assignee != "" {
		if v, ok := task.TagValues[c.Assignee]; ok && v != nil {
			card.Assignee = ids.Normalize(v)
		}
	}
	return card
}

// WithStatus returns a copy of task carrying status in its legacy field and,
// when the team has a status tag, in its tag values.
func (c Catalog) WithStatus(task models.Task, status string) models.Task {
	task.Status = status
	if c.Status != "" {
		values := make(map[string]any, len(task.TagValues)+1)
		for k, v := range task.TagValues {
			values[k] = v
		}
		values[c.Status] = status
		task.TagValues = values
	}
	return task
}

// AssigneeValue returns the raw assignee value of task as an id list.
func (c Catalog) AssigneeValue(task models.Task) ids.List {
	if c.Assignee != "" {
		if v, ok := task.TagValues[c.Assignee]; ok {
			return ids.ParseList(v)
		}
	}
	if strings.TrimSpace(task.Assignee) == "" {
		return ids.List{}
	}
	return ids.ParseList(task.Assignee)
}

func (c Catalog) text(task models.Task, tagID string) (string, bool) {
	if tagID == "" {
		return "", false
	}
	v, ok := task.TagValues[tagID]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	return s, s != ""
}

func placeholder(id, status string) Card {
	return Card{
		ID:          id,
		Title:       "Task " + id,
		Description: "Loading...",
		Status:      status,
		Assignee:    []string{},
		Attachments: []models.Attachment{},
		Placeholder: true,
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"sprintboard/internal/models"
)

var taskColumns = []string{
	"id", "team_id", "title", "description", "status", "assignee",
	"tag_values", "attachments", "created_at", "updated_at",
}

func scanTask(row scanner) (models.Task, error) {
	var (
		t           models.Task
		tagValues   string
		attachments string
	)
	if err := row.Scan(&t.ID, &t.TeamID, &t.Title, &t.Description, &t.Status, &t.Assignee,
		&tagValues, &attachments, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return models.Task{}, err
	}
	if err := json.Unmarshal([]byte(tagValues), &t.TagValues); err != nil {
		return models.Task{}, fmt.Errorf("decode tag_values of task %d: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(attachments), &t.Attachments); err != nil {
		return models.Task{}, fmt.Errorf("decode attachments of task %d: %w", t.ID, err)
	}
	if t.TagValues == nil {
		t.TagValues = map[string]any{}
	}
	if t.Attachments == nil {
		t.Attachments = []models.Attachment{}
	}
	return t, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateTask inserts a new task for a team.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return models.Task{}, fmt.Errorf("task title must not be empty")
	}
	if _, ok := models.ValidTaskStatuses[t.Status]; !ok {
		t.Status = models.StatusTodo
	}
	if t.TagValues == nil {
		t.TagValues = map[string]any{}
	}
	if t.Attachments == nil {
		t.Attachments = []models.Attachment{}
	}

	tagValues, err := encodeJSON(t.TagValues)
	if err != nil {
		return models.Task{}, fmt.Errorf("encode tag values: %w", err)
	}
	attachments, err := encodeJSON(t.Attachments)
	if err != nil {
		return models.Task{}, fmt.Errorf("encode attachments: %w", err)
	}

	columns := []string{"team_id", "title", "description", "status", "assignee", "tag_values", "attachments"}
	values := []any{t.TeamID, strings.TrimSpace(t.Title), strings.TrimSpace(t.Description), t.Status, t.Assignee, tagValues, attachments}
	if t.ID > 0 {
		columns = append([]string{"id"}, columns...)
		values = append([]any{t.ID}, values...)
	}

	query, args, err := s.builder.Insert("tasks").Columns(columns...).Values(values...).ToSql()
	if err != nil {
		return models.Task{}, wrapDBError(err, "CreateTask: build query")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Task{}, wrapDBError(err, "CreateTask: execute query")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, wrapDBError(err, "CreateTask: last insert id")
	}
	return s.GetTask(ctx, id)
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (models.Task, error) {
	return s.getTask(ctx, s.db, id)
}

func (s *Store) getTask(ctx context.Context, q querier, id int64) (models.Task, error) {
	query, args, err := s.builder.
		Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.Task{}, wrapDBError(err, "GetTask: build query")
	}

	t, err := scanTask(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Task{}, wrapDBError(err, "GetTask: query row")
	}
	return t, nil
}

// GetTasks loads the tasks with the given ids. Missing ids are skipped.
func (s *Store) GetTasks(ctx context.Context, ids []int64) ([]models.Task, error) {
	if len(ids) == 0 {
		return []models.Task{}, nil
	}
	return s.listTasks(ctx, "GetTasks", squirrel.Eq{"id": ids})
}

// ListTasks returns the tasks of a team.
func (s *Store) ListTasks(ctx context.Context, teamID int64) ([]models.Task, error) {
	return s.listTasks(ctx, "ListTasks", squirrel.Eq{"team_id": teamID})
}

func (s *Store) listTasks(ctx context.Context, name string, where squirrel.Sqlizer) ([]models.Task, error) {
	query, args, err := s.builder.
		Select(taskColumns...).
		From("tasks").
		Where(where).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, wrapDBError(err, name+": build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, name+": query")
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError(err, name+": scan")
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies a partial update. Tag values are merged into the stored
// map inside one transaction; a nil value deletes the entry.
func (s *Store) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (models.Task, error) {
	var updated models.Task
	err := s.withTx(ctx, "UpdateTask", func(tx *sql.Tx) error {
		current, err := s.getTask(ctx, tx, id)
		if err != nil {
			return err
		}

		update := s.builder.Update("tasks").Where(squirrel.Eq{"id": id})
		changed := false
		if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
			update, changed = update.Set("title", strings.TrimSpace(*patch.Title)), true
		}
		if patch.Description != nil {
			update, changed = update.Set("description", strings.TrimSpace(*patch.Description)), true
		}
		if patch.Status != nil {
			if _, ok := models.ValidTaskStatuses[*patch.Status]; !ok {
				return fmt.Errorf("invalid task status %q", *patch.Status)
			}
			update, changed = update.Set("status", *patch.Status), true
		}
		if patch.Assignee != nil {
			update, changed = update.Set("assignee", *patch.Assignee), true
		}
		if patch.TagValues != nil {
			merged := make(map[string]any, len(current.TagValues)+len(patch.TagValues))
			for k, v := range current.TagValues {
				merged[k] = v
			}
			for k, v := range patch.TagValues {
				if v == nil {
					delete(merged, k)
					continue
				}
				merged[k] = v
			}
			encoded, err := encodeJSON(merged)
			if err != nil {
				return fmt.Errorf("encode tag values: %w", err)
			}
			update, changed = update.Set("tag_values", encoded), true
		}
		if patch.Attachments != nil {
			list := *patch.Attachments
			if list == nil {
				list = []models.Attachment{}
			}
			encoded, err := encodeJSON(list)
			if err != nil {
				return fmt.Errorf("encode attachments: %w", err)
			}
			update, changed = update.Set("attachments", encoded), true
		}

		if changed {
			query, args, err := update.ToSql()
			if err != nil {
				return wrapDBError(err, "UpdateTask: build query")
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return wrapDBError(err, "UpdateTask: execute query")
			}
		}

		updated, err = s.getTask(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}
	return updated, nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	query, args, err := s.builder.Delete("tasks").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return wrapDBError(err, "DeleteTask: build query")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError(err, "DeleteTask: execute query")
	}
	ok, err := affected(res, "DeleteTask")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	return nil
}

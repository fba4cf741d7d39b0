package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"sprintboard/internal/models"
)

var sprintColumns = []string{
	"id", "team_id", "name", "status", "start_date", "duration", "goal",
	"task_ids", "what_went_well", "to_improve", "created_by", "created_at", "updated_at",
}

func scanSprint(row scanner) (models.Sprint, error) {
	var (
		sp        models.Sprint
		start     sql.NullTime
		taskIDs   string
		wentWell  string
		toImprove string
	)
	if err := row.Scan(&sp.ID, &sp.TeamID, &sp.Name, &sp.Status, &start, &sp.Duration, &sp.Goal,
		&taskIDs, &wentWell, &toImprove, &sp.CreatedBy, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
		return models.Sprint{}, err
	}
	if start.Valid {
		t := start.Time
		sp.StartDate = &t
	}
	if err := json.Unmarshal([]byte(taskIDs), &sp.TaskIDs); err != nil {
		return models.Sprint{}, fmt.Errorf("decode task_ids of sprint %d: %w", sp.ID, err)
	}
	if err := json.Unmarshal([]byte(wentWell), &sp.WhatWentWell); err != nil {
		return models.Sprint{}, fmt.Errorf("decode what_went_well of sprint %d: %w", sp.ID, err)
	}
	if err := json.Unmarshal([]byte(toImprove), &sp.ToImprove); err != nil {
		return models.Sprint{}, fmt.Errorf("decode to_improve of sprint %d: %w", sp.ID, err)
	}
	if sp.TaskIDs == nil {
		sp.TaskIDs = models.TaskIDs{}
	}
	if sp.WhatWentWell == nil {
		sp.WhatWentWell = []string{}
	}
	if sp.ToImprove == nil {
		sp.ToImprove = []string{}
	}
	return sp, nil
}

func encodeNotes(notes []string) (string, error) {
	if notes == nil {
		notes = []string{}
	}
	return encodeJSON(notes)
}

func encodeTaskIDs(taskIDs models.TaskIDs) (string, error) {
	if taskIDs == nil {
		taskIDs = models.TaskIDs{}
	}
	return encodeJSON(taskIDs)
}

// CreateSprint inserts a sprint. Task ids are stored as given so their
// representation survives the round trip.
func (s *Store) CreateSprint(ctx context.Context, sp models.Sprint) (models.Sprint, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return models.Sprint{}, fmt.Errorf("sprint name must not be empty")
	}
	if sp.Status == "" {
		sp.Status = models.SprintPlanning
	}
	if !sp.Status.Valid() {
		return models.Sprint{}, fmt.Errorf("invalid sprint status %q", sp.Status)
	}
	if sp.Duration <= 0 {
		sp.Duration = 2
	}

	taskIDs, err := encodeTaskIDs(sp.TaskIDs)
	if err != nil {
		return models.Sprint{}, fmt.Errorf("encode task ids: %w", err)
	}
	wentWell, err := encodeNotes(sp.WhatWentWell)
	if err != nil {
		return models.Sprint{}, err
	}
	toImprove, err := encodeNotes(sp.ToImprove)
	if err != nil {
		return models.Sprint{}, err
	}

	columns := []string{"team_id", "name", "status", "start_date", "duration", "goal", "task_ids", "what_went_well", "to_improve", "created_by"}
	values := []any{sp.TeamID, sp.Name, string(sp.Status), sp.StartDate, sp.Duration, strings.TrimSpace(sp.Goal), taskIDs, wentWell, toImprove, sp.CreatedBy}
	if sp.ID > 0 {
		columns = append([]string{"id"}, columns...)
		values = append([]any{sp.ID}, values...)
	}

	query, args, err := s.builder.Insert("sprints").Columns(columns...).Values(values...).ToSql()
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "CreateSprint: build query")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "CreateSprint: execute query")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "CreateSprint: last insert id")
	}
	return s.GetSprint(ctx, id)
}

// GetSprint fetches a sprint by id.
func (s *Store) GetSprint(ctx context.Context, id int64) (models.Sprint, error) {
	query, args, err := s.builder.
		Select(sprintColumns...).
		From("sprints").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "GetSprint: build query")
	}

	sp, err := scanSprint(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sprint{}, fmt.Errorf("sprint %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "GetSprint: query row")
	}
	return sp, nil
}

// ListSprints returns the sprints of a team, or every sprint when teamID is 0.
func (s *Store) ListSprints(ctx context.Context, teamID int64) ([]models.Sprint, error) {
	sel := s.builder.Select(sprintColumns...).From("sprints").OrderBy("created_at DESC", "id DESC")
	if teamID > 0 {
		sel = sel.Where(squirrel.Eq{"team_id": teamID})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, wrapDBError(err, "ListSprints: build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "ListSprints: query")
	}
	defer rows.Close()

	sprints := make([]models.Sprint, 0)
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, wrapDBError(err, "ListSprints: scan")
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

// UpdateSprint applies a partial update and returns the stored record.
func (s *Store) UpdateSprint(ctx context.Context, id int64, patch models.SprintPatch) (models.Sprint, error) {
	update := s.builder.Update("sprints").Where(squirrel.Eq{"id": id})
	changed := false

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Sprint{}, fmt.Errorf("sprint name must not be empty")
		}
		update, changed = update.Set("name", name), true
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return models.Sprint{}, fmt.Errorf("invalid sprint status %q", *patch.Status)
		}
		update, changed = update.Set("status", string(*patch.Status)), true
	}
	if patch.StartDate != nil {
		update, changed = update.Set("start_date", *patch.StartDate), true
	}
	if patch.Duration != nil {
		update, changed = update.Set("duration", *patch.Duration), true
	}
	if patch.Goal != nil {
		update, changed = update.Set("goal", strings.TrimSpace(*patch.Goal)), true
	}
	if patch.TaskIDs != nil {
		encoded, err := encodeTaskIDs(patch.TaskIDs)
		if err != nil {
			return models.Sprint{}, fmt.Errorf("encode task ids: %w", err)
		}
		update, changed = update.Set("task_ids", encoded), true
	}
	if patch.WhatWentWell != nil {
		encoded, err := encodeNotes(*patch.WhatWentWell)
		if err != nil {
			return models.Sprint{}, err
		}
		update, changed = update.Set("what_went_well", encoded), true
	}
	if patch.ToImprove != nil {
		encoded, err := encodeNotes(*patch.ToImprove)
		if err != nil {
			return models.Sprint{}, err
		}
		update, changed = update.Set("to_improve", encoded), true
	}

	if !changed {
		return s.GetSprint(ctx, id)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "UpdateSprint: build query")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Sprint{}, wrapDBError(err, "UpdateSprint: execute query")
	}
	ok, err := affected(res, "UpdateSprint")
	if err != nil {
		return models.Sprint{}, err
	}
	if !ok {
		return models.Sprint{}, fmt.Errorf("sprint %d: %w", id, models.ErrNotFound)
	}
	return s.GetSprint(ctx, id)
}

// StartSprint marks a sprint ACTIVE, stamping the start date when unset.
func (s *Store) StartSprint(ctx context.Context, id int64) (models.Sprint, error) {
	current, err := s.GetSprint(ctx, id)
	if err != nil {
		return models.Sprint{}, err
	}
	status := models.SprintActive
	patch := models.SprintPatch{Status: &status}
	if current.StartDate == nil {
		now := time.Now().UTC().Truncate(time.Second)
		patch.StartDate = &now
	}
	return s.UpdateSprint(ctx, id, patch)
}

// CompleteSprint marks a sprint COMPLETED.
func (s *Store) CompleteSprint(ctx context.Context, id int64) (models.Sprint, error) {
	status := models.SprintCompleted
	return s.UpdateSprint(ctx, id, models.SprintPatch{Status: &status})
}

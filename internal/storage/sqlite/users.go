package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"sprintboard/internal/models"
)

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	query, args, err := s.builder.
		Select("id", "name", "email", "avatar").
		From("users").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, wrapDBError(err, "ListUsers: build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "ListUsers: query")
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar); err != nil {
			return nil, wrapDBError(err, "ListUsers: scan")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user. An explicit id is kept so fixtures can pin ids.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if strings.TrimSpace(u.Name) == "" {
		return models.User{}, fmt.Errorf("user name must not be empty")
	}

	insert := s.builder.Insert("users")
	if u.ID > 0 {
		insert = insert.Columns("id", "name", "email", "avatar").
			Values(u.ID, strings.TrimSpace(u.Name), strings.TrimSpace(u.Email), u.Avatar)
	} else {
		insert = insert.Columns("name", "email", "avatar").
			Values(strings.TrimSpace(u.Name), strings.TrimSpace(u.Email), u.Avatar)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return models.User{}, wrapDBError(err, "CreateUser: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %d: %w", u.ID, ErrDuplicate)
		}
		return models.User{}, wrapDBError(err, "CreateUser: execute query")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, wrapDBError(err, "CreateUser: last insert id")
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a single user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	query, args, err := s.builder.
		Select("id", "name", "email", "avatar").
		From("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.User{}, wrapDBError(err, "GetUser: build query")
	}

	var u models.User
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &u.Email, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, wrapDBError(err, "GetUser: query row")
	}
	return u, nil
}

// ListTags returns the tag catalog of a team.
func (s *Store) ListTags(ctx context.Context, teamID int64) ([]models.Tag, error) {
	query, args, err := s.builder.
		Select("id", "team_id", "name").
		From("tags").
		Where(squirrel.Eq{"team_id": teamID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, wrapDBError(err, "ListTags: build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "ListTags: query")
	}
	defer rows.Close()

	tags := make([]models.Tag, 0)
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.TeamID, &t.Name); err != nil {
			return nil, wrapDBError(err, "ListTags: scan")
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag adds a catalog entry to a team.
func (s *Store) CreateTag(ctx context.Context, t models.Tag) (models.Tag, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return models.Tag{}, fmt.Errorf("tag name must not be empty")
	}

	query, args, err := s.builder.
		Insert("tags").
		Columns("team_id", "name").
		Values(t.TeamID, t.Name).
		ToSql()
	if err != nil {
		return models.Tag{}, wrapDBError(err, "CreateTag: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Tag{}, fmt.Errorf("tag %q: %w", t.Name, ErrDuplicate)
		}
		return models.Tag{}, wrapDBError(err, "CreateTag: execute query")
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return models.Tag{}, wrapDBError(err, "CreateTag: last insert id")
	}
	return t, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"sprintboard/internal/models"
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate")

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

var roleColumns = []string{"id", "team_id", "name", "description", "created_by", "created_at"}

func scanRole(row scanner) (models.AgileRole, error) {
	var r models.AgileRole
	err := row.Scan(&r.ID, &r.TeamID, &r.Name, &r.Description, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

// ListRoles returns the agile roles of a team.
func (s *Store) ListRoles(ctx context.Context, teamID int64) ([]models.AgileRole, error) {
	query, args, err := s.builder.
		Select(roleColumns...).
		From("agile_roles").
		Where(squirrel.Eq{"team_id": teamID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, wrapDBError(err, "ListRoles: build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "ListRoles: query")
	}
	defer rows.Close()

	roles := make([]models.AgileRole, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, wrapDBError(err, "ListRoles: scan")
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (s *Store) GetRole(ctx context.Context, id int64) (models.AgileRole, error) {
	query, args, err := s.builder.
		Select(roleColumns...).
		From("agile_roles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.AgileRole{}, wrapDBError(err, "GetRole: build query")
	}

	r, err := scanRole(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.AgileRole{}, fmt.Errorf("role %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.AgileRole{}, wrapDBError(err, "GetRole: query row")
	}
	return r, nil
}

// CreateRole inserts a role. Names are unique per team, ignoring case.
func (s *Store) CreateRole(ctx context.Context, role models.AgileRole) (models.AgileRole, error) {
	query, args, err := s.builder.
		Insert("agile_roles").
		Columns("team_id", "name", "description", "created_by").
		Values(role.TeamID, strings.TrimSpace(role.Name), strings.TrimSpace(role.Description), role.CreatedBy).
		ToSql()
	if err != nil {
		return models.AgileRole{}, wrapDBError(err, "CreateRole: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.AgileRole{}, fmt.Errorf("role %q: %w", role.Name, ErrDuplicate)
		}
		return models.AgileRole{}, wrapDBError(err, "CreateRole: execute query")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.AgileRole{}, wrapDBError(err, "CreateRole: last insert id")
	}
	return s.GetRole(ctx, id)
}

// UpdateRole renames a role and replaces its description.
func (s *Store) UpdateRole(ctx context.Context, id int64, name, description string) (models.AgileRole, error) {
	query, args, err := s.builder.
		Update("agile_roles").
		Set("name", strings.TrimSpace(name)).
		Set("description", strings.TrimSpace(description)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.AgileRole{}, wrapDBError(err, "UpdateRole: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.AgileRole{}, fmt.Errorf("role %q: %w", name, ErrDuplicate)
		}
		return models.AgileRole{}, wrapDBError(err, "UpdateRole: execute query")
	}
	ok, err := affected(res, "UpdateRole")
	if err != nil {
		return models.AgileRole{}, err
	}
	if !ok {
		return models.AgileRole{}, fmt.Errorf("role %d: %w", id, models.ErrNotFound)
	}
	return s.GetRole(ctx, id)
}

// DeleteRole removes a role; its member assignments cascade.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	query, args, err := s.builder.Delete("agile_roles").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return wrapDBError(err, "DeleteRole: build query")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError(err, "DeleteRole: execute query")
	}
	ok, err := affected(res, "DeleteRole")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("role %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) memberSelect() squirrel.SelectBuilder {
	return s.builder.
		Select("m.id", "m.agile_id", "m.role_id", "m.user_id", "COALESCE(u.name, '')", "COALESCE(u.avatar, '')", "m.created_at").
		From("agile_members m").
		LeftJoin("users u ON u.id = m.user_id")
}

func scanMember(row scanner) (models.AgileMember, error) {
	var m models.AgileMember
	err := row.Scan(&m.ID, &m.AgileID, &m.RoleID, &m.UserID, &m.UserName, &m.UserAvatar, &m.CreatedAt)
	return m, err
}

// ListMembers returns the role assignments of a sprint joined with the
// assigned users.
func (s *Store) ListMembers(ctx context.Context, agileID int64) ([]models.AgileMember, error) {
	query, args, err := s.memberSelect().
		Where(squirrel.Eq{"m.agile_id": agileID}).
		OrderBy("m.id").
		ToSql()
	if err != nil {
		return nil, wrapDBError(err, "ListMembers: build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "ListMembers: query")
	}
	defer rows.Close()

	members := make([]models.AgileMember, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, wrapDBError(err, "ListMembers: scan")
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// FindMember returns the assignment of userID on a sprint.
func (s *Store) FindMember(ctx context.Context, agileID, userID int64) (models.AgileMember, error) {
	return s.findMember(ctx, squirrel.Eq{"m.agile_id": agileID, "m.user_id": userID},
		fmt.Sprintf("member %d of sprint %d", userID, agileID))
}

func (s *Store) findMember(ctx context.Context, where squirrel.Eq, what string) (models.AgileMember, error) {
	query, args, err := s.memberSelect().Where(where).ToSql()
	if err != nil {
		return models.AgileMember{}, wrapDBError(err, "FindMember: build query")
	}

	m, err := scanMember(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.AgileMember{}, fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	if err != nil {
		return models.AgileMember{}, wrapDBError(err, "FindMember: query row")
	}
	return m, nil
}

// CreateMember assigns a role to a user on a sprint.
func (s *Store) CreateMember(ctx context.Context, member models.AgileMember) (models.AgileMember, error) {
	query, args, err := s.builder.
		Insert("agile_members").
		Columns("agile_id", "role_id", "user_id").
		Values(member.AgileID, member.RoleID, member.UserID).
		ToSql()
	if err != nil {
		return models.AgileMember{}, wrapDBError(err, "CreateMember: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.AgileMember{}, fmt.Errorf("member %d of sprint %d: %w", member.UserID, member.AgileID, ErrDuplicate)
		}
		return models.AgileMember{}, wrapDBError(err, "CreateMember: execute query")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.AgileMember{}, wrapDBError(err, "CreateMember: last insert id")
	}
	return s.findMember(ctx, squirrel.Eq{"m.id": id}, fmt.Sprintf("member %d", id))
}

// UpdateMemberRole changes the role of an existing assignment.
func (s *Store) UpdateMemberRole(ctx context.Context, id, roleID int64) (models.AgileMember, error) {
	query, args, err := s.builder.
		Update("agile_members").
		Set("role_id", roleID).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.AgileMember{}, wrapDBError(err, "UpdateMemberRole: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.AgileMember{}, wrapDBError(err, "UpdateMemberRole: execute query")
	}
	ok, err := affected(res, "UpdateMemberRole")
	if err != nil {
		return models.AgileMember{}, err
	}
	if !ok {
		return models.AgileMember{}, fmt.Errorf("member %d: %w", id, models.ErrNotFound)
	}
	return s.findMember(ctx, squirrel.Eq{"m.id": id}, fmt.Sprintf("member %d", id))
}

// DeleteMember removes the assignment of userID on a sprint.
func (s *Store) DeleteMember(ctx context.Context, agileID, userID int64) error {
	query, args, err := s.builder.
		Delete("agile_members").
		Where(squirrel.Eq{"agile_id": agileID, "user_id": userID}).
		ToSql()
	if err != nil {
		return wrapDBError(err, "DeleteMember: build query")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError(err, "DeleteMember: execute query")
	}
	ok, err := affected(res, "DeleteMember")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("member %d of sprint %d: %w", userID, agileID, models.ErrNotFound)
	}
	return nil
}

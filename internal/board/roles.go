package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sprintboard/internal/lock"
	"sprintboard/internal/models"
)

// UniqueRoleName returns name, or name with the first free " (n)" suffix when
// a role of the team already uses it. Names compare case-insensitively.
func UniqueRoleName(name string, existing []models.AgileRole, exclude int64) string {
	taken := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		if r.ID == exclude {
			continue
		}
		taken[roleKey(r.Name)] = struct{}{}
	}
	if _, ok := taken[roleKey(name)]; !ok {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if _, ok := taken[roleKey(candidate)]; !ok {
			return candidate
		}
	}
}

func roleKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Roles lists the agile roles of a team.
func (c *Coordinator) Roles(ctx context.Context, teamID int64) ([]models.AgileRole, error) {
	roles, err := c.roles.ListRoles(ctx, teamID)
	if err != nil {
		return nil, &PersistenceError{Op: "list roles", Err: err}
	}
	return roles, nil
}

// CreateRole adds a role to a team, renaming it when the name is taken.
func (c *Coordinator) CreateRole(ctx context.Context, role models.AgileRole) (models.AgileRole, error) {
	const op = "create role"

	role.Name = strings.TrimSpace(role.Name)
	role.Description = strings.TrimSpace(role.Description)
	if role.Name == "" {
		return models.AgileRole{}, c.failTeam(ctx, role.TeamID, &ValidationError{Op: op, Reason: "role name is required"})
	}

	var created models.AgileRole
	err := c.locks.Do(lock.TeamRolesKey(role.TeamID), func() error {
		existing, err := c.roles.ListRoles(ctx, role.TeamID)
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		role.Name = UniqueRoleName(role.Name, existing, 0)
		created, err = c.roles.CreateRole(ctx, role)
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		return nil
	})
	if err != nil {
		return models.AgileRole{}, c.failTeam(ctx, role.TeamID, err)
	}

	c.log.Infow("role created", "team_id", created.TeamID, "role_id", created.ID, "name", created.Name)
	c.notifier.Notify(ctx, Notice{Kind: NoticeBoard, TeamID: created.TeamID, Message: "role created", Payload: created})
	return created, nil
}

// UpdateRole renames or re-describes a role. The role's own name never
// counts as a collision.
func (c *Coordinator) UpdateRole(ctx context.Context, id int64, name, description string) (models.AgileRole, error) {
	const op = "update role"

	current, err := c.getRole(ctx, id)
	if err != nil {
		return models.AgileRole{}, c.failTeam(ctx, 0, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.AgileRole{}, c.failTeam(ctx, current.TeamID, &ValidationError{Op: op, Reason: "role name is required"})
	}

	var updated models.AgileRole
	err = c.locks.Do(lock.TeamRolesKey(current.TeamID), func() error {
		existing, err := c.roles.ListRoles(ctx, current.TeamID)
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		updated, err = c.roles.UpdateRole(ctx, id, UniqueRoleName(name, existing, id), strings.TrimSpace(description))
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		return nil
	})
	if err != nil {
		return models.AgileRole{}, c.failTeam(ctx, current.TeamID, err)
	}

	c.notifier.Notify(ctx, Notice{Kind: NoticeBoard, TeamID: updated.TeamID, Message: "role updated", Payload: updated})
	return updated, nil
}

// DeleteRole removes a role.
func (c *Coordinator) DeleteRole(ctx context.Context, id int64) error {
	current, err := c.getRole(ctx, id)
	if err != nil {
		return c.failTeam(ctx, 0, err)
	}
	if err := c.roles.DeleteRole(ctx, id); err != nil {
		return c.failTeam(ctx, current.TeamID, &PersistenceError{Op: "delete role", Err: err})
	}
	c.log.Infow("role deleted", "team_id", current.TeamID, "role_id", id)
	c.notifier.Notify(ctx, Notice{Kind: NoticeBoard, TeamID: current.TeamID, Message: "role deleted", Payload: current})
	return nil
}

// Members lists the role assignments of a sprint.
func (c *Coordinator) Members(ctx context.Context, agileID int64) ([]models.AgileMember, error) {
	members, err := c.roles.ListMembers(ctx, agileID)
	if err != nil {
		return nil, &PersistenceError{Op: "list members", Err: err}
	}
	return members, nil
}

// AssignRole gives userID the role roleID on a sprint, updating the existing
// assignment when there is one.
func (c *Coordinator) AssignRole(ctx context.Context, agileID, userID, roleID int64) (models.AgileMember, error) {
	const op = "assign role"

	if userID <= 0 || roleID <= 0 {
		return models.AgileMember{}, c.fail(ctx, agileID, &ValidationError{Op: op, Reason: "user and role are required", Err: ErrMalformedID})
	}
	if _, err := c.getRole(ctx, roleID); err != nil {
		return models.AgileMember{}, c.fail(ctx, agileID, err)
	}

	var member models.AgileMember
	err := c.locks.Do(lock.MemberKey(agileID, userID), func() error {
		existing, err := c.roles.FindMember(ctx, agileID, userID)
		switch {
		case err == nil:
			member, err = c.roles.UpdateMemberRole(ctx, existing.ID, roleID)
		case errors.Is(err, models.ErrNotFound):
			member, err = c.roles.CreateMember(ctx, models.AgileMember{AgileID: agileID, UserID: userID, RoleID: roleID})
		}
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		return nil
	})
	if err != nil {
		return models.AgileMember{}, c.fail(ctx, agileID, err)
	}

	c.refreshMembers(ctx, agileID)
	c.log.Infow("role assigned", "sprint_id", agileID, "user_id", userID, "role_id", roleID)
	c.notify(ctx, agileID, "role assigned", member)
	return member, nil
}

// UnassignRole removes the role assignment of userID on a sprint.
func (c *Coordinator) UnassignRole(ctx context.Context, agileID, userID int64) error {
	const op = "unassign role"

	err := c.locks.Do(lock.MemberKey(agileID, userID), func() error {
		err := c.roles.DeleteMember(ctx, agileID, userID)
		if errors.Is(err, models.ErrNotFound) {
			return &NotFoundError{Kind: "member", ID: strconv.FormatInt(userID, 10), Err: err}
		}
		if err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		return nil
	})
	if err != nil {
		return c.fail(ctx, agileID, err)
	}

	c.refreshMembers(ctx, agileID)
	c.notify(ctx, agileID, "role unassigned", map[string]int64{"user_id": userID})
	return nil
}

func (c *Coordinator) getRole(ctx context.Context, id int64) (models.AgileRole, error) {
	role, err := c.roles.GetRole(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.AgileRole{}, &NotFoundError{Kind: "role", ID: strconv.FormatInt(id, 10), Err: err}
	}
	if err != nil {
		return models.AgileRole{}, &PersistenceError{Op: "load role", Err: err}
	}
	return role, nil
}

// refreshMembers reloads the member list of an open board so its resolver
// fallback stays current.
func (c *Coordinator) refreshMembers(ctx context.Context, agileID int64) {
	c.mu.Lock()
	s, ok := c.sessions[agileID]
	c.mu.Unlock()
	if ok {
		c.loadMembers(ctx, s)
	}
}

func (c *Coordinator) failTeam(ctx context.Context, teamID int64, err error) error {
	var persist *PersistenceError
	if errors.As(err, &persist) {
		c.log.Errorw("role change failed", "team_id", teamID, "error", err, "type", "technical")
	} else {
		c.log.Infow("role change rejected", "team_id", teamID, "error", err, "type", "business")
	}
	c.notifier.Notify(ctx, Notice{Kind: NoticeError, TeamID: teamID, Code: Code(err), Message: Message(err)})
	return err
}

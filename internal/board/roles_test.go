package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/models"
)

func TestUniqueRoleName(t *testing.T) {
	existing := []models.AgileRole{
		{ID: 1, Name: "Scrum Master"},
		{ID: 2, Name: "scrum master (1)"},
		{ID: 3, Name: "Product Owner"},
	}

	assert.Equal(t, "Developer", UniqueRoleName("Developer", existing, 0))
	assert.Equal(t, "Product Owner (1)", UniqueRoleName("Product Owner", existing, 0))
	assert.Equal(t, "Scrum Master (2)", UniqueRoleName("Scrum Master", existing, 0))
	assert.Equal(t, "Product Owner", UniqueRoleName("Product Owner", existing, 3))
	assert.Equal(t, "Tester", UniqueRoleName("Tester", nil, 0))
}

func TestCreateRole_RenamesOnCollision(t *testing.T) {
	c, _, rec := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Scrum Master"})
	require.NoError(t, err)
	assert.Equal(t, "Scrum Master", first.Name)

	second, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: " scrum master "})
	require.NoError(t, err)
	assert.Equal(t, "scrum master (1)", second.Name)

	third, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Scrum Master"})
	require.NoError(t, err)
	assert.Equal(t, "Scrum Master (2)", third.Name)

	other, err := c.CreateRole(ctx, models.AgileRole{TeamID: 11, Name: "Scrum Master"})
	require.NoError(t, err)
	assert.Equal(t, "Scrum Master", other.Name, "names are unique per team")

	roles, err := c.Roles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, roles, 3)
	assert.Empty(t, rec.errors())
}

func TestCreateRole_Rejections(t *testing.T) {
	c, store, rec := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "  "})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	store.fail("CreateRole", errStoreDown)
	_, err = c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Developer"})
	var pe *PersistenceError
	assert.ErrorAs(t, err, &pe)

	notices := rec.errors()
	require.Len(t, notices, 2)
	assert.Equal(t, int64(10), notices[1].TeamID)
	assert.Equal(t, CodePersist, notices[1].Code)
}

func TestUpdateRole(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	dev, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Developer"})
	require.NoError(t, err)
	_, err = c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Tester"})
	require.NoError(t, err)

	same, err := c.UpdateRole(ctx, dev.ID, "Developer", "writes code")
	require.NoError(t, err)
	assert.Equal(t, "Developer", same.Name)
	assert.Equal(t, "writes code", same.Description)

	renamed, err := c.UpdateRole(ctx, dev.ID, "tester", "")
	require.NoError(t, err)
	assert.Equal(t, "tester (1)", renamed.Name)

	_, err = c.UpdateRole(ctx, 9999, "Ghost", "")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDeleteRole(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	role, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Developer"})
	require.NoError(t, err)
	require.NoError(t, c.DeleteRole(ctx, role.ID))

	roles, err := c.Roles(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, roles)

	var nf *NotFoundError
	assert.ErrorAs(t, c.DeleteRole(ctx, role.ID), &nf)
}

func TestAssignRole_UpsertsAndFeedsResolver(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	ctx := context.Background()
	store.users[7] = models.User{ID: 7, Name: "Cleo"}

	dev, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Developer"})
	require.NoError(t, err)
	sm, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Scrum Master"})
	require.NoError(t, err)

	s, err := c.Open(ctx, sprintID)
	require.NoError(t, err)
	assert.True(t, s.Resolver().ResolveUser(7).Stub)

	first, err := c.AssignRole(ctx, sprintID, 7, dev.ID)
	require.NoError(t, err)
	second, err := c.AssignRole(ctx, sprintID, 7, sm.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, sm.ID, second.RoleID)

	members, err := c.Members(ctx, sprintID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, 1, store.count("CreateMember"))
	assert.Equal(t, 1, store.count("UpdateMemberRole"))

	u := s.Resolver().ResolveUser("7")
	assert.False(t, u.Stub)
	assert.Equal(t, "Cleo", u.Name)
	assert.Zero(t, store.count("GetUser"))
	assert.Len(t, s.Members(), 1)
}

func TestAssignRole_Rejections(t *testing.T) {
	c, _, rec := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.AssignRole(ctx, sprintID, 0, 1)
	assert.ErrorIs(t, err, ErrMalformedID)

	_, err = c.AssignRole(ctx, sprintID, 5, 404)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	notices := rec.errors()
	require.Len(t, notices, 2)
	assert.Equal(t, CodeNotFound, notices[1].Code)
}

func TestUnassignRole(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	role, err := c.CreateRole(ctx, models.AgileRole{TeamID: 10, Name: "Developer"})
	require.NoError(t, err)
	_, err = c.AssignRole(ctx, sprintID, 5, role.ID)
	require.NoError(t, err)

	require.NoError(t, c.UnassignRole(ctx, sprintID, 5))
	members, err := c.Members(ctx, sprintID)
	require.NoError(t, err)
	assert.Empty(t, members)

	var nf *NotFoundError
	assert.ErrorAs(t, c.UnassignRole(ctx, sprintID, 5), &nf)
}

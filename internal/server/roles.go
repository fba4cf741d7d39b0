package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/models"
)

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   int64  `json:"created_by"`
}

type memberRequest struct {
	RoleID int64 `json:"role_id" binding:"required"`
}

// handleListRoles returns the agile roles of a team.
func (s *Server) handleListRoles(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}

	roles, err := s.board.Roles(c.Request.Context(), teamID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"roles": roles})
}

// handleCreateRole adds a role; a taken name comes back with a " (n)" suffix.
func (s *Server) handleCreateRole(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	role, err := s.board.CreateRole(c.Request.Context(), models.AgileRole{
		TeamID:      teamID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"role": role})
}

// handleUpdateRole renames a role or changes its description.
func (s *Server) handleUpdateRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	role, err := s.board.UpdateRole(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"role": role})
}

// handleDeleteRole removes a role and its assignments.
func (s *Server) handleDeleteRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := s.board.DeleteRole(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleListMembers returns who holds which role on a sprint.
func (s *Server) handleListMembers(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}

	members, err := s.board.Members(c.Request.Context(), sprintID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"members": members})
}

// handleAssignMember gives a user a role on a sprint, replacing any previous one.
func (s *Server) handleAssignMember(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	member, err := s.board.AssignRole(c.Request.Context(), sprintID, userID, req.RoleID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"member": member})
}

// handleUnassignMember removes the role of a user on a sprint.
func (s *Server) handleUnassignMember(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	if err := s.board.UnassignRole(c.Request.Context(), sprintID, userID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

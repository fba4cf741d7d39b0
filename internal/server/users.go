package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/board"
	"sprintboard/internal/ids"
	"sprintboard/internal/models"
	"sprintboard/internal/resolver"
)

type userRequest struct {
	ID     int64  `json:"id"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

type tagRequest struct {
	Name string `json:"name" binding:"required"`
}

// handleListUsers returns every known user.
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "list users", Err: err})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": users})
}

// handleCreateUser stores a user and publishes it to the shared directory.
func (s *Server) handleCreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(c, &board.ValidationError{Op: "create user", Reason: "user name is required"})
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), models.User{
		ID:     req.ID,
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
	})
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "create user", Err: err})
		return
	}
	s.board.Directory().Put(user)
	respondSuccess(c, http.StatusCreated, gin.H{"user": user})
}

// handleGetUser fetches a single user.
func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := s.store.GetUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(c, &board.NotFoundError{Kind: "user", ID: strconv.FormatInt(id, 10), Err: err})
			return
		}
		s.respondError(c, &board.PersistenceError{Op: "get user", Err: err})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}

// handleResolveUsers resolves an assignee value such as ?ids=5,6. With
// ?sprint= the lookup also sees that sprint's members. Missing users come
// back as stubs and are fetched in the background.
func (s *Server) handleResolveUsers(c *gin.Context) {
	raw := c.Query("ids")
	for _, id := range ids.Normalize(raw) {
		if _, err := ids.ParseInt(id); err != nil {
			s.respondError(c, &board.ValidationError{Op: "resolve users", Reason: "ids must be a comma separated list of user ids", Err: board.ErrMalformedID})
			return
		}
	}

	res := s.users
	if sprint := c.Query("sprint"); sprint != "" {
		sprintID, err := strconv.ParseInt(sprint, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid sprint id")
			return
		}
		session, err := s.board.Open(c.Request.Context(), sprintID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		res = session.Resolver()
	}

	resolution := res.Resolve(raw)
	res.ScheduleUserFetch(raw)
	respondSuccess(c, http.StatusOK, gin.H{
		"resolution": resolution,
		"display":    resolver.DisplayName(resolution),
	})
}

// handleListTags returns the tag catalog of a team.
func (s *Server) handleListTags(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}

	tags, err := s.store.ListTags(c.Request.Context(), teamID)
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "list tags", Err: err})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tags": tags})
}

// handleCreateTag adds a tag to a team catalog.
func (s *Server) handleCreateTag(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(c, &board.ValidationError{Op: "create tag", Reason: "tag name is required"})
		return
	}

	tag, err := s.store.CreateTag(c.Request.Context(), models.Tag{TeamID: teamID, Name: req.Name})
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "create tag", Err: err})
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"tag": tag})
}

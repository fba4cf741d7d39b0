package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/board"
	"sprintboard/internal/models"
	"sprintboard/internal/realtime"
)

type sprintRequest struct {
	TeamID    int64               `json:"team_id" binding:"required"`
	Name      string              `json:"name" binding:"required"`
	Status    models.SprintStatus `json:"status"`
	StartDate *time.Time          `json:"start_date"`
	Duration  int                 `json:"duration"`
	Goal      string              `json:"goal"`
	TaskIDs   models.TaskIDs      `json:"task_ids"`
	CreatedBy int64               `json:"created_by"`
}

type retrospectiveRequest struct {
	WhatWentWell []string `json:"what_went_well"`
	ToImprove    []string `json:"to_improve"`
}

// handleListSprints returns all sprints, or those of ?team_id= when given.
func (s *Server) handleListSprints(c *gin.Context) {
	var teamID int64
	if raw := c.Query("team_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid team_id")
			return
		}
		teamID = id
	}

	sprints, err := s.store.ListSprints(c.Request.Context(), teamID)
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "list sprints", Err: err})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprints": sprints})
}

// handleCreateSprint creates a sprint; task ids keep the shape they were sent in.
func (s *Server) handleCreateSprint(c *gin.Context) {
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(c, &board.ValidationError{Op: "create sprint", Reason: "sprint name is required"})
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		s.respondError(c, &board.ValidationError{Op: "create sprint", Reason: "unknown sprint status " + strconv.Quote(string(req.Status))})
		return
	}
	if conflicts := board.Conflicts(req.TaskIDs); len(conflicts) > 0 {
		s.logger.Warnw("sprint created with tasks in several buckets", "tasks", conflicts)
	}

	sprint, err := s.store.CreateSprint(c.Request.Context(), models.Sprint{
		TeamID:    req.TeamID,
		Name:      req.Name,
		Status:    req.Status,
		StartDate: req.StartDate,
		Duration:  req.Duration,
		Goal:      req.Goal,
		TaskIDs:   req.TaskIDs,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "create sprint", Err: err})
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"sprint": sprint, "end_date": sprint.EndDate()})
}

// handleGetSprint fetches the stored sprint record.
func (s *Server) handleGetSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	sprint, err := s.store.GetSprint(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, sprintError("get sprint", id, err))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint, "end_date": sprint.EndDate()})
}

// handleCloseBoard discards the open board of a sprint. The sprint record
// is left as it is; the next request loads a fresh board.
func (s *Server) handleCloseBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := s.store.GetSprint(c.Request.Context(), id); err != nil {
		s.respondError(c, sprintError("close board", id, err))
		return
	}
	s.board.Close(id)
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleBoard returns the bucketed board with resolved assignees.
func (s *Server) handleBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := s.board.Board(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// handleStartSprint moves a planned sprint to ACTIVE.
func (s *Server) handleStartSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	sprint, err := s.board.StartSprint(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint, "end_date": sprint.EndDate()})
}

// handleCompleteSprint closes an active sprint.
func (s *Server) handleCompleteSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	sprint, err := s.board.CompleteSprint(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}

// handleRetrospective replaces the retrospective notes of a sprint.
func (s *Server) handleRetrospective(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req retrospectiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	sprint, err := s.board.UpdateRetrospective(c.Request.Context(), id, req.WhatWentWell, req.ToImprove)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}

// handleWebsocket subscribes the caller to notices of the sprint and its team.
func (s *Server) handleWebsocket(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	session, err := s.board.Open(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	teamID := session.Sprint().TeamID
	if err := s.hub.Serve(c.Writer, c.Request, realtime.SprintRoom(id), realtime.TeamRoom(teamID)); err != nil {
		// The upgrader has already answered the request.
		s.logger.Warnw("websocket upgrade failed", "sprint_id", id, "error", err)
	}
}

func sprintError(op string, id int64, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return &board.NotFoundError{Kind: "sprint", ID: strconv.FormatInt(id, 10), Err: err}
	}
	return &board.PersistenceError{Op: op, Err: err}
}

package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/board"
	"sprintboard/internal/models"
)

type taskRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *string        `json:"status"`
	Assignee    *string        `json:"assignee"`
	TagValues   map[string]any `json:"tag_values"`
}

type moveRequest struct {
	Status string `json:"status" binding:"required"`
}

// Assignee is left untyped: clients send "5,6", [5, 6] or a bare number.
type assigneeRequest struct {
	Assignee any `json:"assignee"`
}

type attachmentRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	AddedBy int64  `json:"added_by"`
}

// handleListTasks fetches the tasks of a team.
func (s *Server) handleListTasks(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), teamID)
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "list tasks", Err: err})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask inserts a new task for a team.
func (s *Server) handleCreateTask(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		s.respondError(c, &board.ValidationError{Op: "create task", Reason: "title is required"})
		return
	}

	task, err := s.store.CreateTask(c.Request.Context(), models.Task{
		TeamID:      teamID,
		Title:       *req.Title,
		Description: getString(req.Description),
		Status:      getString(req.Status),
		Assignee:    getString(req.Assignee),
		TagValues:   req.TagValues,
	})
	if err != nil {
		s.respondError(c, &board.PersistenceError{Op: "create task", Err: err})
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleGetTask fetches a single task.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, taskError("get task", id, err))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task. Boards still listing it show a placeholder.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondError(c, taskError("delete task", id, err))
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleMoveTask moves a task card to the column of the requested status.
func (s *Server) handleMoveTask(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	card, err := s.board.MoveTask(c.Request.Context(), sprintID, c.Param("taskId"), req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"card": card})
}

// handleAssignTask replaces the assignee list of a task.
func (s *Server) handleAssignTask(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req assigneeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	card, err := s.board.AssignTask(c.Request.Context(), sprintID, c.Param("taskId"), req.Assignee)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"card": card})
}

// handleAddAttachment links a file to a task.
func (s *Server) handleAddAttachment(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req attachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	card, err := s.board.AddAttachment(c.Request.Context(), sprintID, c.Param("taskId"), models.Attachment{
		Name:    req.Name,
		URL:     req.URL,
		AddedBy: req.AddedBy,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"card": card})
}

// handleRemoveAttachment unlinks a file from a task.
func (s *Server) handleRemoveAttachment(c *gin.Context) {
	sprintID, ok := parseID(c, "id")
	if !ok {
		return
	}

	card, err := s.board.RemoveAttachment(c.Request.Context(), sprintID, c.Param("taskId"), c.Param("attachmentId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"card": card})
}

func taskError(op string, id int64, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return &board.NotFoundError{Kind: "task", ID: strconv.FormatInt(id, 10), Err: err}
	}
	return &board.PersistenceError{Op: op, Err: err}
}

func getString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

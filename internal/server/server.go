package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sprintboard/internal/board"
	"sprintboard/internal/logger"
	"sprintboard/internal/models"
	"sprintboard/internal/realtime"
	"sprintboard/internal/resolver"
	"sprintboard/internal/storage/sqlite"
)

const requestIDHeader = "X-Request-ID"

// Server provides HTTP handlers for the sprint board backend.
type Server struct {
	engine *gin.Engine
	store  *sqlite.Store
	board  *board.Coordinator
	hub    *realtime.Hub
	users  *resolver.Resolver
	logger *logger.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, coord *board.Coordinator, hub *realtime.Hub, log *logger.Logger, opts resolver.Options) *Server {
	if log == nil {
		log = logger.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	srv := &Server{
		engine: router,
		store:  store,
		board:  coord,
		hub:    hub,
		users:  resolver.New(coord.Directory(), store, log.Named("users"), opts),
		logger: log,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Close stops background user fetches started by the resolve endpoint.
func (s *Server) Close() {
	s.users.Close()
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		users := api.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.POST("", s.handleCreateUser)
			users.GET("/resolve", s.handleResolveUsers)
			users.GET("/:id", s.handleGetUser)
		}

		teams := api.Group("/teams")
		{
			teams.GET("/:id/tags", s.handleListTags)
			teams.POST("/:id/tags", s.handleCreateTag)
			teams.GET("/:id/roles", s.handleListRoles)
			teams.POST("/:id/roles", s.handleCreateRole)
			teams.GET("/:id/tasks", s.handleListTasks)
			teams.POST("/:id/tasks", s.handleCreateTask)
		}

		api.PUT("/roles/:id", s.handleUpdateRole)
		api.DELETE("/roles/:id", s.handleDeleteRole)

		api.GET("/tasks/:id", s.handleGetTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		sprints := api.Group("/sprints")
		{
			sprints.GET("", s.handleListSprints)
			sprints.POST("", s.handleCreateSprint)
			sprints.GET("/:id", s.handleGetSprint)
			sprints.GET("/:id/board", s.handleBoard)
			sprints.DELETE("/:id/board", s.handleCloseBoard)
			sprints.POST("/:id/start", s.handleStartSprint)
			sprints.POST("/:id/complete", s.handleCompleteSprint)
			sprints.PUT("/:id/retrospective", s.handleRetrospective)

			sprints.POST("/:id/tasks/:taskId/move", s.handleMoveTask)
			sprints.PUT("/:id/tasks/:taskId/assignee", s.handleAssignTask)
			sprints.POST("/:id/tasks/:taskId/attachments", s.handleAddAttachment)
			sprints.DELETE("/:id/tasks/:taskId/attachments/:attachmentId", s.handleRemoveAttachment)

			sprints.GET("/:id/members", s.handleListMembers)
			sprints.PUT("/:id/members/:userId", s.handleAssignMember)
			sprints.DELETE("/:id/members/:userId", s.handleUnassignMember)

			sprints.GET("/:id/ws", s.handleWebsocket)
		}
	}
}

// handleHealth reports readiness, including database reachability.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		fields := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Errorw("request failed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warnw("request rejected", fields...)
		default:
			log.Debugw("request served", fields...)
		}
	}
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid identifier "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

// errorStatus maps an error to the HTTP status and code of the envelope.
func errorStatus(err error) (int, string) {
	var (
		validation *board.ValidationError
		notFound   *board.NotFoundError
		persist    *board.PersistenceError
	)
	switch {
	case errors.Is(err, board.ErrTaskNotInSprint):
		return http.StatusConflict, board.CodeTaskNotInSprint
	case errors.Is(err, board.ErrMalformedID):
		return http.StatusBadRequest, board.CodeValidation
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, board.CodeValidation
	case errors.As(err, &notFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, board.CodeNotFound
	case errors.Is(err, sqlite.ErrDuplicate):
		return http.StatusConflict, "CONFLICT"
	case errors.As(err, &persist):
		return http.StatusBadGateway, board.CodePersist
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// respondError logs the error and writes the error envelope.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	message := board.Message(err)
	switch {
	case status == http.StatusNotFound || status == http.StatusConflict:
		message = err.Error()
	case status == http.StatusInternalServerError:
		message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "error", err)
	}
	writeError(c, status, code, message)
}

// badRequest rejects a body or query that could not be parsed.
func (s *Server) badRequest(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondSuccess writes payload as JSON, or only the status when it is nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

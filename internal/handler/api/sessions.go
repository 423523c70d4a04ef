package api

import (
	"errors"
	"net/http"

	models "ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/session"
	xhttp "ScalpPulse/pkg/http"
	xlogger "ScalpPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SessionsHandler exposes the session manager over HTTP. The primary control
// surface is the redis command channel; these routes exist for dashboards and
// operational tooling.
type SessionsHandler struct {
	logger  *xlogger.Logger
	manager *session.Manager
}

func NewSessionsHandler(logger *xlogger.Logger, manager *session.Manager) *SessionsHandler {
	return &SessionsHandler{logger: logger, manager: manager}
}

func (h *SessionsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/sessions", h.List)
	g.GET("/sessions/:user_id", h.Get)
	g.POST("/sessions", h.Start)
	g.DELETE("/sessions/:user_id", h.Stop)
}

func (h *SessionsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SessionsHandler) List(c echo.Context) error {
	statuses := h.manager.Statuses()
	return xhttp.ListResponse(c, statuses, int64(len(statuses)))
}

func (h *SessionsHandler) Get(c echo.Context) error {
	userID := c.Param("user_id")
	for _, st := range h.manager.Statuses() {
		if st.UserID == userID {
			return xhttp.SuccessResponse(c, st)
		}
	}
	return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no active session for user %q", userID))
}

type startSessionRequest struct {
	UserID         string                `json:"user_id" validate:"required"`
	AccessToken    string                `json:"access_token" validate:"required"`
	StrategyConfig models.StrategyConfig `json:"strategy_config"`
}

func (h *SessionsHandler) Start(c echo.Context) error {
	req := &startSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.manager.Start(c.Request().Context(), req.UserID, req.StrategyConfig, req.AccessToken)
	if err != nil {
		h.logger.Error("start session failed",
			xlogger.String("user_id", req.UserID),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, startError(req.UserID, err))
	}
	return xhttp.CreatedResponse(c, map[string]string{"user_id": req.UserID})
}

func (h *SessionsHandler) Stop(c echo.Context) error {
	userID := c.Param("user_id")
	if err := h.manager.Stop(c.Request().Context(), userID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no active session for user %q", userID))
		}
		h.logger.Error("stop session failed",
			xlogger.String("user_id", userID),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
	}
	return xhttp.NoContentResponse(c)
}

func startError(userID string, err error) *xhttp.AppError {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return xhttp.NewAppError("ERR_SESSION_ACTIVE",
			"user_id", "session already active for user "+userID, http.StatusConflict)
	case errors.Is(err, session.ErrInitTimeout):
		return xhttp.NewAppError("ERR_INIT_TIMEOUT",
			"", err.Error(), http.StatusGatewayTimeout)
	default:
		return xhttp.BadRequestError(err.Error()).WithError(err)
	}
}

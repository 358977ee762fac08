package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uclouvain/osis-score-encoding/internal/service"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
	"github.com/uclouvain/osis-score-encoding/pkg/response"
)

// SessionHandler exposes the session-exam calendar.
type SessionHandler struct {
	calendar *service.CalendarService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(calendar *service.CalendarService) *SessionHandler {
	return &SessionHandler{calendar: calendar}
}

// Current godoc
// @Summary Resolve the open encoding session
// @Description Returns the session whose encoding window contains the current business date. When no window is open the nearest closed_on and opens_on messages are returned instead.
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/current [get]
func (h *SessionHandler) Current(c *gin.Context) {
	session, err := h.calendar.CurrentSession(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if session != nil {
		response.JSON(c, http.StatusOK, gin.H{"open": true, "session": session}, nil)
		return
	}

	messages, err := h.calendar.SessionWindowMessages(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"open": false, "messages": messages}, nil)
}

// Calendar godoc
// @Summary List the session calendar of the academic year
// @Description Returns the encoding sessions of the current academic year. Pass number to fetch a single session; a number absent from the calendar yields 404.
// @Tags Sessions
// @Produce json
// @Param number query int false "Session number to fetch"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions [get]
func (h *SessionHandler) Calendar(c *gin.Context) {
	if raw := c.Query("number"); raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session number must be an integer"))
			return
		}
		session, err := h.calendar.Session(c.Request.Context(), number)
		if err != nil {
			response.Error(c, err)
			return
		}
		if session == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no such session in the calendar"))
			return
		}
		response.JSON(c, http.StatusOK, session, nil)
		return
	}

	sessions, err := h.calendar.YearSessions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

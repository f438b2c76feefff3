package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenPendantBridge/internal/auth"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxJournalLimit = 1000

// GET /api/v1/bridge/status
func (s *Server) getBridgeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"system": s.lm.GetCurrentStatus(),
		"bridge": s.lm.Bridge().Status(),
	})
}

// GET /api/v1/bridge/machine
func (s *Server) getMachineState(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Bridge().Store().Snapshot())
}

// POST /api/v1/bridge/display/toggle
func (s *Server) toggleDisplay(c *gin.Context) {
	if err := s.lm.Bridge().ToggleDisplay(); err != nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponseFromError(types.CodeBridgeUnavailable, "Bridge not running", err))
		return
	}

	s.logger.Info("Display toggle requested via API", zap.String("client", auth.ClientName(c)))
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Display toggle queued",
	})
}

// GET /api/v1/bridge/journal?limit=N
func (s *Server) getJournal(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponseFromError(types.CodeJournalDisabled, "Journal disabled", nil))
		return
	}

	limit := 100
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxJournalLimit {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeJournalBadRequest, "Invalid limit", q))
			return
		}
		limit = n
	}

	entries, err := store.ListJournalEntries(c.Request.Context(), s.lm.Bridge().ID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponseFromError(types.CodeJournalReadFailed, "Failed to read journal", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

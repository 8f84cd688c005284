package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/metrics"
	"github.com/lalith-99/cohortchat/internal/policy"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

// writeError turns a service error into a JSON response. Anything it does
// not recognise is logged and reported as a 500 without detail.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		denial  *policy.Denial
		invalid *service.ValidationError
		missing *service.NotFoundError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.As(err, &denial):
		metrics.PolicyDenials.WithLabelValues(string(denial.Action), string(denial.Rule)).Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": denial.Error(), "rule": denial.Rule})
	case errors.Is(err, service.ErrChatExists):
		c.JSON(http.StatusForbidden, gin.H{"error": "This chat already exists."})
	case errors.Is(err, service.ErrDiplomaManaged):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &missing):
		c.JSON(http.StatusNotFound, gin.H{"error": missing.Error()})
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pathID parses the :id path parameter, answering 400 when it is not a uuid.
func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

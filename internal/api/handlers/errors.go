package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP responses. Only validation
// failures echo their message to the caller.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	switch {
	case utils.IsUserFacing(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrTransportFailure), errors.Is(err, utils.ErrDataUnavailable):
		logger.WithError(err).WithField("path", c.FullPath()).Warn("Upstream market data unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "market data unavailable"})
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

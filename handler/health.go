package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ClientCounter reports how many relay clients are connected.
type ClientCounter interface {
	Count() int
}

// Health reports liveness and the relay's client count.
func Health(clients ClientCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"clients":   clients.Count(),
		})
	}
}

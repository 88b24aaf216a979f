package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/database"
	"github.com/charlesng35/taskpulse/internal/realtime"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// StatsProvider exposes realtime counters.
type StatsProvider interface {
	Stats() realtime.Stats
}

// Health reports database reachability and current hub counters. A failed ping turns
// the response into a 503 so load balancers stop routing here.
func Health(db *gorm.DB, hub StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		payload := gin.H{"status": "ok", "database": "ok"}

		if err := database.Ping(requestContext(c), db); err != nil {
			status = http.StatusServiceUnavailable
			payload["status"] = "degraded"
			payload["database"] = "unreachable"
		}
		if hub != nil {
			payload["realtime"] = hub.Stats()
		}

		response.Success(c, status, payload)
	}
}

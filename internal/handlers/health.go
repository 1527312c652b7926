// internal/handlers/health.go
package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// RootHandler answers the bare liveness probe.
func (s *Server) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "faceoff lobby service"})
}

// HealthHandler reports liveness plus basic host info.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Message:   "lobby service running",
		Timestamp: time.Now().UTC(),
		HostInfo: map[string]string{
			"hostname": hostname,
			"go":       runtime.Version(),
		},
	})
}

package ws

import (
	"chat-match/observability"
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	PathWebSocket = "/ws"
	PathHealth    = "/healthz"
	PathStats     = "/stats"
)

// NewMux exposes the WebSocket endpoint next to the health and stats probes.
func NewMux(log *slog.Logger, handler *Handler, stats func() observability.MonitoringStats) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(PathWebSocket, handler)
	mux.HandleFunc(PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(PathStats, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats()); err != nil {
			log.Warn("Stats not written", "error", err)
		}
	})
	return mux
}

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/metrics"
	"github.com/ayusman/handstream/internal/session"
	"github.com/gorilla/websocket"
	"github.com/mdobak/go-xerrors"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Browser clients are served from other origins
	},
}

// HandTrackingHandler upgrades requests to WebSocket and runs one session per connection.
type HandTrackingHandler struct {
	app     *app.App
	config  session.Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandTrackingHandler creates a new HandTrackingHandler.
func NewHandTrackingHandler(a *app.App, config session.Config, log *slog.Logger, m *metrics.Metrics) *HandTrackingHandler {
	return &HandTrackingHandler{
		app:     a,
		config:  config,
		log:     log,
		metrics: m,
	}
}

// ServeHTTP handles WebSocket upgrade requests. It returns when the session ends.
func (h *HandTrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", slog.Any("error", err))
		return
	}

	pipeline, err := h.app.NewPipeline()
	if err != nil {
		h.log.Error("failed to start detector",
			slog.String("remote_addr", conn.RemoteAddr().String()),
			slog.Any("error", xerrors.New(err)),
		)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "detector unavailable")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// Errors are logged by the session.
	session.New(conn, pipeline, h.config, h.log, h.metrics).Run(r.Context())
}

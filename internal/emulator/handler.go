package emulator

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/models"
)

// Handler serves a Backend over the websocket protocol. Requests from all
// connections are applied to the backend one at a time.
type Handler struct {
	mu       sync.Mutex
	backend  Backend
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(backend Backend, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		backend: backend,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req message
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if err := conn.WriteJSON(h.handle(req)); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *Handler) handle(req message) message {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp := message{ID: req.ID}
	switch req.Type {
	case typeState:
		state, err := h.backend.State()
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.State = state
	case typePress:
		token, ok := models.ParseToken(req.Button)
		if !ok || token == models.TokenWait {
			resp.Error = "unknown button " + req.Button
			break
		}
		if err := h.backend.Press(token); err != nil {
			resp.Error = err.Error()
			break
		}
		resp.OK = true
	default:
		resp.Error = "unknown request type " + req.Type
	}
	return resp
}

package emulator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/perception"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialSim(t *testing.T) (*Client, *Sim) {
	t.Helper()
	sim := newDemo(t)
	srv := httptest.NewServer(NewHandler(sim, nil))
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, sim
}

func TestClient_StateAndPress(t *testing.T) {
	c, sim := dialSim(t)
	ctx := context.Background()

	text, err := c.State(ctx)
	require.NoError(t, err)
	obs, err := perception.Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "Player House", obs.MapName)

	require.NoError(t, c.Press(ctx, models.TokenUp))
	require.NoError(t, c.Press(ctx, models.TokenWait))
	assert.Equal(t, []models.Token{models.TokenUp}, sim.Presses())

	_, pos := sim.Position()
	assert.Equal(t, models.Coord{X: 1, Y: 3}, pos)
}

func TestClient_RemoteError(t *testing.T) {
	c, _ := dialSim(t)

	err := c.Press(context.Background(), models.Token("JUMP"))
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "press", remote.Op)

	// the connection stays usable after a remote error
	_, err = c.State(context.Background())
	assert.NoError(t, err)
}

func TestClient_MismatchedID(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req message
		if conn.ReadJSON(&req) == nil {
			conn.WriteJSON(message{ID: req.ID + 7, State: "stale"})
		}
		conn.ReadMessage()
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.State(context.Background())
	assert.ErrorContains(t, err, "does not match")
	// the next call runs on a fresh connection
	_, err = c.State(context.Background())
	assert.ErrorContains(t, err, "does not match")
	assert.Equal(t, int32(2), dials.Load())
}

// dropFirst serves the demo world but cuts the first connection after
// reading one request.
func dropFirst(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	h := NewHandler(newDemo(t), nil)
	upgrader := websocket.Upgrader{}
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dials.Add(1) > 1 {
			h.ServeHTTP(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv, &dials
}

func TestClient_RedialsAfterDrop(t *testing.T) {
	srv, dials := dropFirst(t)
	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.State(context.Background())
	require.Error(t, err)

	text, err := c.State(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Player House")
	require.NoError(t, c.Press(context.Background(), models.TokenRight))
	assert.Equal(t, int32(2), dials.Load())
}

func TestClient_NoRedialAfterClose(t *testing.T) {
	c, _ := dialSim(t)
	require.NoError(t, c.Close())

	_, err := c.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_ContextTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.State(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestHandler_UnknownType(t *testing.T) {
	h := NewHandler(newDemo(t), nil)
	resp := h.handle(message{ID: 3, Type: "reset"})
	assert.Equal(t, uint64(3), resp.ID)
	assert.Contains(t, resp.Error, "unknown request type")

	resp = h.handle(message{ID: 4, Type: typePress, Button: "WAIT"})
	assert.NotEmpty(t, resp.Error)
}

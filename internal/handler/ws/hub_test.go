package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"IPOPulse/internal/domain/models"
	applogger "IPOPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(applogger.NewNop())
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predictions"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsPredictions(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	pred := &models.ConsensusPrediction{Symbol: "ACME", Date: "2026-10-16", Recommendation: models.RecBuy}
	require.NoError(t, hub.Publish(context.Background(), pred))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got models.ConsensusPrediction
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ACME", got.Symbol)
	assert.Equal(t, models.RecBuy, got.Recommendation)
}

func TestHubSymbolFilter(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?symbol=zenith")
	waitSubscribers(t, hub, 1)

	require.NoError(t, hub.Publish(context.Background(), &models.ConsensusPrediction{Symbol: "ACME", Date: "2026-10-16"}))
	require.NoError(t, hub.Publish(context.Background(), &models.ConsensusPrediction{Symbol: "ZENITH", Date: "2026-10-16"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"symbol":"ZENITH"`)
}

func TestHubCloseDisconnects(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	require.NoError(t, hub.Close())
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.ErrorIs(t, hub.Publish(context.Background(), &models.ConsensusPrediction{Symbol: "ACME"}), ErrHubClosed)
}

func TestParseSymbols(t *testing.T) {
	assert.Nil(t, parseSymbols(" "))
	assert.Equal(t, map[string]bool{"ACME": true, "ZENITH": true}, parseSymbols("acme, ZENITH,"))
}

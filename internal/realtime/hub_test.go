package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGauge struct {
	mu sync.Mutex
	v  float64
}

func (g *fakeGauge) Set(v float64) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

func (g *fakeGauge) get() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

func startHub(t *testing.T) (*Hub, *fakeGauge, string, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := &fakeGauge{}
	h := NewHub(g)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	r := gin.New()
	r.GET("/stream", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, g, "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream", cancel
}

func TestHub_BroadcastsTicketCreated(t *testing.T) {
	h, g, url, _ := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return g.get() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.TicketCreated(map[string]interface{}{"id": 5, "status": "open"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventTicketCreated, msg.Type)
	assert.EqualValues(t, 5, msg.Payload["id"])
}

func TestHub_Unregister(t *testing.T) {
	h, g, url, _ := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return g.get() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h, _, url, cancel := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, h.Count())
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	h := NewHub(nil)
	// очередь буферизована, Run не запущен, не блокируемся
	for i := 0; i < 100; i++ {
		h.Publish(EventTicketCreated, i)
	}
	assert.Equal(t, 0, h.Count())
}

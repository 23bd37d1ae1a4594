package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, hub *Hub, conn *websocket.Conn, streamID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", StreamID: streamID}))
	deadline := time.Now().Add(2 * time.Second)
	for hub.subscriberCount(streamID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not registered in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	conn := dialHub(t, hub)
	subscribe(t, hub, conn, "stream-1")

	hub.Broadcast(BetUpdate{
		StreamID:    "stream-1",
		BetID:       "b1",
		UserID:      "u1",
		BetType:     "speed_milestone",
		Status:      "WON",
		PayoutCents: 2_400,
	})

	var got BetUpdate
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "b1", got.BetID)
	assert.Equal(t, int64(2_400), got.PayoutCents)

	// broadcast de outro stream não chega a este cliente
	hub.Broadcast(BetUpdate{StreamID: "stream-2", BetID: "b2"})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var extra BetUpdate
	assert.Error(t, conn.ReadJSON(&extra))
}

// escritas concorrentes na mesma conexão: o pong do read loop disputa com o
// Broadcast; ambas precisam passar pelo mutex de escrita do client
func TestHubConcurrentPingAndBroadcast(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	conn := dialHub(t, hub)
	subscribe(t, hub, conn, "stream-1")

	const rounds = 200

	// drena tudo que o hub escrever (pongs + updates)
	received := make(chan struct{})
	go func() {
		defer close(received)
		total := 0
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for total < 2*rounds {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			total++
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := conn.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			hub.Broadcast(BetUpdate{StreamID: "stream-1", BetID: "b1", Status: "WON"})
		}
	}()
	wg.Wait()

	select {
	case <-received:
	case <-time.After(10 * time.Second):
		t.Fatal("client did not receive all messages")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	conn := dialHub(t, hub)
	subscribe(t, hub, conn, "stream-1")

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", StreamID: "stream-1"}))
	deadline := time.Now().Add(2 * time.Second)
	for hub.subscriberCount("stream-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("unsubscribe not processed in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(BetUpdate{StreamID: "stream-1", BetID: "b1"})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var got BetUpdate
	assert.Error(t, conn.ReadJSON(&got))
}

package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/events"
)

func startHub(t *testing.T, bus *events.Bus, rooms ...string) *websocket.Conn {
	t.Helper()

	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		hub.Connect(conn, rooms...)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The handshake returns before Connect runs server-side; wait for the
	// subscription to attach before publishing.
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 },
		2*time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_ForwardsRoomEventsAsJSON(t *testing.T) {
	bus := events.NewBus()
	conn := startHub(t, bus, events.TournamentRoom(1, 42))

	// Only the subscribed room reaches the socket.
	bus.Publish(events.TournamentsRoom(1), events.Event{Event: events.TournamentUpdated})
	bus.Publish(events.TournamentRoom(1, 42), events.Event{
		Event: events.MatchCompleted, TournamentID: 42,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt events.Event
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, events.MatchCompleted, evt.Event)
	assert.Equal(t, 42, evt.TournamentID)
}

func TestHub_ClientDisconnectReleasesSubscription(t *testing.T) {
	bus := events.NewBus()
	conn := startHub(t, bus, events.TournamentsRoom(1))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 },
		2*time.Second, 5*time.Millisecond)
}

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/board"
	"sprintboard/internal/logger"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rooms []string
		if s := r.URL.Query().Get("room"); s != "" {
			rooms = strings.Split(s, ",")
		}
		if err := hub.Serve(w, r, rooms...); err != nil {
			t.Logf("serve: %v", err)
		}
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, rooms string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + rooms
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNotice(t *testing.T, conn *websocket.Conn) board.Notice {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var n board.Notice
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

func TestHub_RoutesBySprint(t *testing.T) {
	hub, srv := startHub(t)
	one := dial(t, srv, SprintRoom(1))
	two := dial(t, srv, SprintRoom(2))

	require.Eventually(t, func() bool {
		return hub.Clients(SprintRoom(1)) == 1 && hub.Clients(SprintRoom(2)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Notify(context.Background(), board.Notice{Kind: board.NoticeError, SprintID: 1, Code: board.CodePersist, Message: "could not save"})

	n := readNotice(t, one)
	assert.Equal(t, board.NoticeError, n.Kind)
	assert.Equal(t, board.CodePersist, n.Code)
	assert.Equal(t, int64(1), n.SprintID)

	require.NoError(t, two.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := two.ReadMessage()
	assert.Error(t, err, "sprint 2 must not see sprint 1 notices")
}

func TestHub_TeamNoticeReachesEachClientOnce(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, SprintRoom(1)+","+TeamRoom(10))

	require.Eventually(t, func() bool { return hub.Clients(TeamRoom(10)) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify(context.Background(), board.Notice{Kind: board.NoticeBoard, SprintID: 1, TeamID: 10, Message: "role assigned"})
	hub.Notify(context.Background(), board.Notice{Kind: board.NoticeBoard, TeamID: 10, Message: "role created"})

	assert.Equal(t, "role assigned", readNotice(t, conn).Message)
	assert.Equal(t, "role created", readNotice(t, conn).Message)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, SprintRoom(3))

	require.Eventually(t, func() bool { return hub.Clients(SprintRoom(3)) == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients(SprintRoom(3)) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_NotifyWithoutRoomIsDropped(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Notify(context.Background(), board.Notice{Message: "nowhere"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestHub_ServeAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// Notify must not block once the hub is gone.
	hub.Notify(context.Background(), board.Notice{SprintID: 1})
	for i := 0; i < sendBuffer+1; i++ {
		hub.Notify(context.Background(), board.Notice{SprintID: 1})
	}
}

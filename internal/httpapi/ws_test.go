package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

// wireEvent is what subscribers see on the wire.
type wireEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", path, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// awaitEvent reads frames until the wanted event arrives; unrelated
// pushes on the same topic are skipped.
func awaitEvent(t *testing.T, conn *websocket.Conn, want string) wireEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if ev.Event == want {
			return ev
		}
	}
	t.Fatalf("no %q event before deadline", want)
	return wireEvent{}
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", event, err)
	}
	if err := conn.WriteJSON(wsFrame{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func createRide(t *testing.T, srv *Server) string {
	t.Helper()
	rec := doJSON(t, srv, "POST", "/api/v1/rides/request", requestRideBody())
	var created struct {
		Ride models.Ride `json:"ride"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode ride: %v", err)
	}
	return created.Ride.ID
}

func TestDriverSocketOfferAndAccept(t *testing.T) {
	srv, _, idx := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	// the upgrade has to survive the instrumented middleware chain
	conn := dialWS(t, ts, "/ws/driver/d-1")

	putDriver(idx, "d-1", 9.021, 38.751)
	rideID := createRide(t, srv)

	offer := awaitEvent(t, conn, realtime.EventRideOffer)
	if offer.Data["ride_id"] != rideID {
		t.Fatalf("offer ride_id = %v, want %s", offer.Data["ride_id"], rideID)
	}

	sendFrame(t, conn, "accept_offer", map[string]string{"ride_id": rideID})
	res := awaitEvent(t, conn, realtime.EventAcceptResult)
	if res.Data["accepted"] != true {
		t.Fatalf("accept result = %v, want accepted", res.Data)
	}
}

func TestSocketChatRoundTrip(t *testing.T) {
	srv, st, idx := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	putDriver(idx, "d-1", 9.021, 38.751)
	rideID := createRide(t, srv)

	conn := dialWS(t, ts, "/ws/passenger/p-1")
	sendFrame(t, conn, "join_ride", map[string]string{"ride_id": rideID})
	sendFrame(t, conn, "chat_message", map[string]string{"ride_id": rideID, "message": "almost there?"})

	ev := awaitEvent(t, conn, realtime.EventChatMessage)
	if ev.Data["message"] != "almost there?" || ev.Data["sender_role"] != "passenger" {
		t.Fatalf("chat echo = %v", ev.Data)
	}

	msgs, err := st.ChatHistory(context.Background(), rideID)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Message != "almost there?" {
		t.Fatalf("history = %+v, want the relayed message", msgs)
	}
}

func TestSocketAcceptContendedIsRetryable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	idx := geo.NewIndex()
	hub := realtime.NewHub(logger)
	cfg := engine.Config{LockWait: 30 * time.Millisecond}
	b := engine.NewBroadcaster(idx, st, hub, nil, nil, cfg, logger)
	c := engine.NewCoordinator(st, hub, idx, nil, nil, cfg, logger)
	srv := New(logger, st, idx, b, c, hub, nil)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	putDriver(idx, "d-1", 9.021, 38.751)
	rideID := createRide(t, srv)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.WithRideLock(context.Background(), rideID, time.Second, func(tx store.RideTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	conn := dialWS(t, ts, "/ws/driver/d-1")
	sendFrame(t, conn, "accept_offer", map[string]string{"ride_id": rideID})

	res := awaitEvent(t, conn, realtime.EventAcceptResult)
	if res.Data["accepted"] != false {
		t.Fatalf("accept under contention = %v, want refused", res.Data)
	}
	if res.Data["retryable"] != true {
		t.Fatalf("contended accept missing retryable hint: %v", res.Data)
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks are handled by the edge proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the client-to-server envelope. Data is decoded per event.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleDriverWS keeps a driver connected to its own topic. Offers and
// assignment outcomes arrive as pushes; the driver sends accept_offer,
// join_ride / leave_ride and chat_message frames upstream.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	if driverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "driver_id", driverID, "error", err)
		return
	}
	s.serveSocket(ws, "driver", driverID, realtime.DriverTopic(driverID))
}

// handlePassengerWS is the passenger-side mirror: no home topic of its
// own, the client joins ride topics as rides are created.
func (s *Server) handlePassengerWS(w http.ResponseWriter, r *http.Request) {
	passengerID := mux.Vars(r)["passenger_id"]
	if passengerID == "" {
		writeError(w, http.StatusBadRequest, "passenger_id is required")
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "passenger_id", passengerID, "error", err)
		return
	}
	s.serveSocket(ws, "passenger", passengerID, "")
}

// serveSocket runs the read loop for one connection until it drops,
// tracking every topic the session joined so cleanup is total.
func (s *Server) serveSocket(ws *websocket.Conn, role, clientID, homeTopic string) {
	sess := realtime.NewSession(ws)
	joined := map[string]struct{}{}
	if homeTopic != "" {
		s.channel.Subscribe(homeTopic, sess)
		joined[homeTopic] = struct{}{}
	}
	defer func() {
		for topic := range joined {
			s.channel.Unsubscribe(topic, sess)
		}
		_ = sess.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("bad websocket frame", "role", role, "client_id", clientID, "error", err)
			continue
		}
		s.dispatchFrame(sess, joined, role, clientID, frame)
	}
}

func (s *Server) dispatchFrame(sess *realtime.Session, joined map[string]struct{}, role, clientID string, frame wsFrame) {
	switch frame.Event {
	case "accept_offer":
		var req struct {
			RideID string `json:"ride_id"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RideID == "" {
			return
		}
		s.acceptOverSocket(sess, clientID, req.RideID)

	case "join_ride":
		var req struct {
			RideID string `json:"ride_id"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RideID == "" {
			return
		}
		topic := realtime.RideTopic(req.RideID)
		if _, ok := joined[topic]; ok {
			return
		}
		s.channel.Subscribe(topic, sess)
		joined[topic] = struct{}{}

	case "leave_ride":
		var req struct {
			RideID string `json:"ride_id"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RideID == "" {
			return
		}
		topic := realtime.RideTopic(req.RideID)
		if _, ok := joined[topic]; !ok {
			return
		}
		s.channel.Unsubscribe(topic, sess)
		delete(joined, topic)

	case "chat_message":
		var req struct {
			RideID  string `json:"ride_id"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RideID == "" || req.Message == "" {
			return
		}
		s.relayChat(role, clientID, req.RideID, req.Message)

	default:
		s.logger.Warn("unknown websocket event", "event", frame.Event, "role", role, "client_id", clientID)
	}
}

// acceptOverSocket runs the accept on the engine and echoes the outcome
// back on the same connection, win or lose.
func (s *Server) acceptOverSocket(sess *realtime.Session, driverID, rideID string) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	res, err := s.coordinator.AcceptOffer(ctx, rideID, driverID)
	if err != nil {
		s.logger.Error("socket accept failed", "ride_id", rideID, "driver_id", driverID, "error", err)
		payload := map[string]any{"ride_id": rideID, "accepted": false, "error": "accept failed"}
		if errors.Is(err, store.ErrLockTimeout) {
			payload["error"] = "ride is contended, retry"
			payload["retryable"] = true
		}
		_ = sess.Deliver(realtime.DriverTopic(driverID), realtime.Message{
			Event: realtime.EventAcceptResult,
			Data:  payload,
		})
		return
	}
	_ = sess.Deliver(realtime.DriverTopic(driverID), realtime.Message{
		Event: realtime.EventAcceptResult,
		Data:  res,
	})
}

func (s *Server) relayChat(role, senderID, rideID, text string) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	msg := &models.ChatMessage{
		ID:         uuid.NewString(),
		RideID:     rideID,
		SenderRole: role,
		SenderID:   senderID,
		Message:    text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveChatMessage(ctx, msg); err != nil {
		s.logger.Error("chat persist failed", "ride_id", rideID, "error", err)
		return
	}
	_ = s.channel.Publish(realtime.RideTopic(rideID), realtime.Message{
		Event: realtime.EventChatMessage,
		Data:  msg,
	})
	observability.ChatMessagesTotal.Inc()
}

// socket-initiated engine calls are detached from any request context;
// bound them so a stuck store cannot pin the read loop forever.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

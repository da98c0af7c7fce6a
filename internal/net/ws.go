package net

import (
	"net/http"
	"time"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

const wsWriteTimeout = 10 * time.Second

// wsEnvelope is the frame shape in both directions. Clients send actions;
// the server sends state pushes and action results.
type wsEnvelope struct {
	Type    string           `json:"type"`
	Player  string           `json:"player,omitempty"`
	Action  string           `json:"action,omitempty"`
	Payload map[string]any   `json:"payload,omitempty"`
	State   *engine.Snapshot `json:"state,omitempty"`
	Result  *engine.Result   `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// watchSession upgrades the connection, pushes the current snapshot, then
// relays every accepted action's snapshot until the client disconnects.
// Clients may also submit actions over the same socket.
func (s *Server) watchSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	player := r.URL.Query().Get("player")

	sess, err := s.manager.Get(id)
	if err != nil {
		s.fail(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	writeFrame := func(env wsEnvelope) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(env)
	}

	snap, err := s.manager.Snapshot(id, player)
	if err != nil {
		writeFrame(wsEnvelope{Type: "error", Error: err.Error()})
		return
	}
	if err := writeFrame(wsEnvelope{Type: "state", State: &snap}); err != nil {
		return
	}

	watch, cancel := sess.Watch()
	defer cancel()

	// Writes are serialized through one goroutine; the read loop forwards
	// results to it instead of touching the conn.
	results := make(chan wsEnvelope, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case _, ok := <-watch:
				if !ok {
					return
				}
				// Re-fetch so player projections stay redacted.
				snap, err := s.manager.Snapshot(id, player)
				if err != nil {
					writeFrame(wsEnvelope{Type: "error", Error: err.Error()})
					return
				}
				if err := writeFrame(wsEnvelope{Type: "state", State: &snap}); err != nil {
					return
				}
			case env := <-results:
				if err := writeFrame(env); err != nil {
					return
				}
			}
		}
	}()

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			s.log.Debug().Err(err).Str("session", id).Msg("websocket closed")
			break
		}
		switch env.Type {
		case "action":
			actor := env.Player
			if actor == "" {
				actor = player
			}
			res, err := s.manager.HandleAction(id, actor, engine.Action{
				Type:      env.Action,
				Payload:   env.Payload,
				Timestamp: time.Now(),
			})
			out := wsEnvelope{Type: "result", Result: &res}
			if err != nil {
				out = wsEnvelope{Type: "error", Error: err.Error()}
			}
			select {
			case results <- out:
			case <-done:
				return
			}
		case "ping":
			select {
			case results <- wsEnvelope{Type: "pong"}:
			case <-done:
				return
			}
		default:
			s.log.Debug().Str("type", env.Type).Msg("ignoring unknown websocket frame")
		}
	}
	// Closing the watch unblocks the writer so it can drain and exit.
	cancel()
	<-done
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	RunID string `json:"runId"`
}

// PlanEventsWSHandler handles /v1/plan-events/ws. Clients send
// {"type":"subscribe","id":"...","payload":{"runId":"..."}} and receive
// {"type":"event","id":"...","payload":{...}} frames until they
// unsubscribe or disconnect.
func (s *Server) PlanEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)

	type sub struct {
		runID string
		ch    chan SSEEvent
	}
	subs := map[string]sub{}
	defer func() {
		for _, sb := range subs {
			s.Broker.Unsubscribe(sb.runID, sb.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// gorilla allows one concurrent writer only
	writes := make(chan any, 16)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case v := <-writes:
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	send := func(v any) {
		select {
		case <-done:
		case writes <- v:
		}
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "subscribe":
			var pl wsSubscribe
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.RunID == "" || msg.ID == "" {
				send(wsMessage{Type: "error", ID: msg.ID, Payload: json.RawMessage(`{"message":"runId and id required"}`)})
				continue
			}
			if _, exists := subs[msg.ID]; exists {
				continue
			}
			ch := s.Broker.Subscribe(pl.RunID)
			subs[msg.ID] = sub{runID: pl.RunID, ch: ch}
			go func(id string, ch chan SSEEvent) {
				for {
					select {
					case <-done:
						return
					case ev, open := <-ch:
						if !open {
							return
						}
						b, _ := json.Marshal(ev)
						send(wsMessage{Type: "event", ID: id, Payload: b})
					}
				}
			}(msg.ID, ch)
			send(wsMessage{Type: "subscribed", ID: msg.ID})
		case "unsubscribe":
			if sb, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(sb.runID, sb.ch)
				delete(subs, msg.ID)
			}
		case "ping":
			send(wsMessage{Type: "pong"})
		}
	}
}

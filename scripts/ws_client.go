// Package main runs a demo WebSocket client for plan events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path string, body []byte) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	return http.DefaultClient.Do(req)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed a rider and a delivery so the plan run has something to pair
	rider := []byte(`{"name":"demo-rider","capacityKg":20,"capacityM3":1,"available":true,"location":{"lat":52.521,"lng":13.406}}`)
	if resp, err := post(base, "/v1/riders", rider); err != nil {
		log.Fatal(err)
	} else {
		_ = resp.Body.Close()
	}
	delivery := []byte(`{"tenantId":"t_demo","deliveries":[{"externalRef":"demo-1","origin":{"lat":52.52,"lng":13.405},"destination":{"lat":52.50,"lng":13.42},"weightKg":2,"volumeM3":0.01,"windowStart":"2026-08-29T09:00:00Z","windowEnd":"2026-08-29T12:00:00Z"}]}`)
	if resp, err := post(base, "/v1/deliveries", delivery); err != nil {
		log.Fatal(err)
	} else {
		_ = resp.Body.Close()
	}

	// Connect WS and follow the global plan feed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plan-events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	pl, _ := json.Marshal(map[string]string{"runId": "plans"})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a planning run; its completion shows up on the feed
	time.Sleep(500 * time.Millisecond)
	resp, err := post(base, "/v1/plan", []byte(`{"tenantId":"t_demo"}`))
	if err != nil {
		log.Fatal(err)
	}
	var run struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&run)
	_ = resp.Body.Close()
	log.Printf("plan run: %s", run.ID)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

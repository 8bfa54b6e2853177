package view

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statuspulse/incidentd/pkg/incident"
	"github.com/statuspulse/incidentd/pkg/stream"
)

func TestBindRoutesStreamIntoReconciler(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	frames := make(chan []byte, 4)
	hold := make(chan struct{})
	defer close(hold)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for frame := range frames {
			conn.WriteMessage(websocket.TextMessage, frame)
		}
		<-hold
		conn.Close()
	}))
	defer srv.Close()

	w := newChangeWaiter()
	r := New(&stubQuerier{}, WithOnChange(w.onChange), WithLogger(quietLogger()))

	cli := stream.NewClient(stream.Config{
		URL:                  "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectAttempts: 1,
		Logger:               quietLogger(),
	})
	defer cli.Disconnect()
	unbind := r.Bind(cli)

	cli.Connect()
	w.waitUntil(t, func(s State) bool { return s.Connected })

	env, err := incident.NewIncidentEvent(incident.EventIncidentCreated, incident.Incident{ID: "incident-7", Title: "pushed"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	payload, _ := json.Marshal(env)
	frames <- payload

	s := w.waitUntil(t, func(s State) bool { return len(s.Items) == 1 })
	if s.Items[0].ID != "incident-7" {
		t.Fatalf("pushed item not applied: %+v", s.Items)
	}

	unbind()
	env2, _ := incident.NewIncidentEvent(incident.EventIncidentCreated, incident.Incident{ID: "incident-8"})
	payload2, _ := json.Marshal(env2)
	frames <- payload2

	time.Sleep(100 * time.Millisecond)
	if got := r.State(); len(got.Items) != 1 {
		t.Fatalf("unbound reconciler still received deltas: %+v", got.Items)
	}
}

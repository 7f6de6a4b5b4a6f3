package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBridge_NilSafe(t *testing.T) {
	var b *Bridge
	b.SurfaceCreated()
	b.Sent("SHOW_KANMON_CONNECT", true, 1)
	b.Received("HIDE")
	b.Dropped("origin")
	b.Ready(time.Second)
	b.Transition("LOADING", "ACTIVE")
	b.EventDelivered("HIDE")
	b.SurfaceDestroyed()
}

func TestBridge_Exposition(t *testing.T) {
	b := New()
	b.SurfaceCreated()
	b.Sent("SHOW_KANMON_CONNECT", true, 1)
	b.Received("MESSAGING_READY")
	b.Dropped("decode")
	b.Transition("LOADING", "ACTIVE")
	b.EventDelivered("USER_STATE_CHANGED")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`connect_surfaces_created_total 1`,
		`connect_surfaces_live 1`,
		`connect_messages_total{action="SHOW_KANMON_CONNECT",direction="outbound"} 1`,
		`connect_messages_total{action="MESSAGING_READY",direction="inbound"} 1`,
		`connect_messages_queued_total 1`,
		`connect_inbound_dropped_total{reason="decode"} 1`,
		`connect_lifecycle_transitions_total{from="LOADING",to="ACTIVE"} 1`,
		`connect_events_delivered_total{event_type="USER_STATE_CHANGED"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in exposition:\n%s", want, out)
		}
	}
}

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
)

func testEvent() dbgen.DomainEvent {
	return dbgen.DomainEvent{
		ID:          pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:       "rate.updated",
		AggregateID: pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Payload:     []byte(`{"rateBps":875}`),
	}
}

func TestNotifySignsAndDelivers(t *testing.T) {
	var captured struct {
		body      []byte
		signature string
		eventID   string
		timestamp string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.body, _ = io.ReadAll(r.Body)
		captured.signature = r.Header.Get("X-Signature")
		captured.eventID = r.Header.Get("X-Event-ID")
		captured.timestamp = r.Header.Get("X-Timestamp")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	event := testEvent()
	hook := &Webhook{Endpoints: []Endpoint{{URL: server.URL, Secret: "s3cret"}}}
	require.NoError(t, hook.Notify(context.Background(), event))

	var delivered struct {
		EventID string          `json:"eventId"`
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(captured.body, &delivered))
	require.Equal(t, "rate.updated", delivered.Topic)
	require.JSONEq(t, `{"rateBps":875}`, string(delivered.Data))
	require.Equal(t, delivered.EventID, captured.eventID)

	ts, err := strconv.ParseInt(captured.timestamp, 10, 64)
	require.NoError(t, err)
	require.Equal(t, ComputeSignature("s3cret", ts, captured.eventID, captured.body), captured.signature)
}

func TestNotifyJoinsEndpointFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	var healthyHits int
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthyHits++
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	hook := &Webhook{Endpoints: []Endpoint{
		{URL: failing.URL, Secret: "a"},
		{URL: healthy.URL, Secret: "b"},
	}}
	err := hook.Notify(context.Background(), testEvent())
	require.Error(t, err, "a failing endpoint surfaces to the caller")
	require.Equal(t, 1, healthyHits, "remaining endpoints still receive the event")
}

func TestNotifyRejectsNonLocalPlainHTTP(t *testing.T) {
	hook := &Webhook{Endpoints: []Endpoint{{URL: "http://example.com/hook", Secret: "a"}}}
	require.Error(t, hook.Notify(context.Background(), testEvent()))
}

func TestNotifyNoEndpointsIsNoop(t *testing.T) {
	var hook *Webhook
	require.NoError(t, hook.Notify(context.Background(), testEvent()))
	require.NoError(t, (&Webhook{}).Notify(context.Background(), testEvent()))
}

func TestParseEndpoints(t *testing.T) {
	endpoints := ParseEndpoints(" https://a.example/hook , , https://b.example/hook ", "shared")
	require.Len(t, endpoints, 2)
	require.Equal(t, "https://a.example/hook", endpoints[0].URL)
	require.Equal(t, "shared", endpoints[1].Secret)

	require.Empty(t, ParseEndpoints("", "shared"))
}

// Package notify delivers domain events to external webhook endpoints.
// Compliance systems subscribe to rate changes and anomaly reports this way.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	dbgen "github.com/noah-isme/backend-levy/internal/db/gen"
)

// Endpoint is one webhook destination with its signing secret.
type Endpoint struct {
	URL    string
	Secret string
}

// Webhook fans domain events out to configured endpoints. It implements
// events.Notifier; delivery happens inline with the emit, so endpoints must
// answer within the client timeout or the emit reports the failure.
type Webhook struct {
	Endpoints []Endpoint
	Client    *http.Client
	Logger    *zerolog.Logger
}

// ParseEndpoints builds endpoints from a comma separated URL list sharing one
// secret. Blank entries are skipped.
func ParseEndpoints(urlsCSV, secret string) []Endpoint {
	var endpoints []Endpoint
	for _, raw := range strings.Split(urlsCSV, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		endpoints = append(endpoints, Endpoint{URL: trimmed, Secret: secret})
	}
	return endpoints
}

// Notify posts the event to every endpoint. Failures are joined so one dead
// endpoint does not starve the rest.
func (w *Webhook) Notify(ctx context.Context, event dbgen.DomainEvent) error {
	if w == nil || len(w.Endpoints) == 0 {
		return nil
	}
	body, err := marshalEvent(event)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	eventID := uuidFrom(event.ID)
	ts := time.Now().Unix()
	var joined error
	for _, ep := range w.Endpoints {
		status, err := w.post(ctx, ep, eventID, ts, body)
		if err == nil && status >= 200 && status < 300 {
			if w.Logger != nil {
				w.Logger.Debug().
					Str("event_id", eventID).
					Str("topic", event.Topic).
					Int("status", status).
					Msg("webhook delivered")
			}
			continue
		}
		if err == nil {
			err = fmt.Errorf("endpoint returned status %d", status)
		}
		if w.Logger != nil {
			w.Logger.Error().Err(err).
				Str("event_id", eventID).
				Str("topic", event.Topic).
				Msg("webhook delivery failed")
		}
		joined = errors.Join(joined, fmt.Errorf("notify: deliver %s: %w", event.Topic, err))
	}
	return joined
}

func (w *Webhook) post(ctx context.Context, ep Endpoint, eventID string, ts int64, body []byte) (int, error) {
	if err := validateURL(ep.URL); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "levy-api-webhooks/1.0")
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, eventID, body))
	resp, err := w.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func (w *Webhook) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return defaultClient
}

var defaultClient = HTTPClient(5 * time.Second)

// HTTPClient returns a client configured for webhook delivery with tracing on
// outbound requests.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func marshalEvent(event dbgen.DomainEvent) ([]byte, error) {
	occurred := time.Now().UTC()
	if event.OccurredAt.Valid {
		occurred = event.OccurredAt.Time
	}
	data := event.Payload
	if len(data) == 0 {
		data = []byte("{}")
	}
	return json.Marshal(struct {
		EventID     string          `json:"eventId"`
		Topic       string          `json:"topic"`
		AggregateID string          `json:"aggregateId,omitempty"`
		Data        json.RawMessage `json:"data"`
		OccurredAt  time.Time       `json:"occurredAt"`
	}{
		EventID:     uuidFrom(event.ID),
		Topic:       event.Topic,
		AggregateID: uuidFrom(event.AggregateID),
		Data:        json.RawMessage(data),
		OccurredAt:  occurred,
	})
}

// ComputeSignature calculates the delivery signature, HMAC-SHA256 over
// "<ts>.<eventID>.<body>" keyed by the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

func uuidFrom(value pgtype.UUID) string {
	if !value.Valid {
		return ""
	}
	id, err := uuid.FromBytes(value.Bytes[:])
	if err != nil {
		return ""
	}
	return id.String()
}

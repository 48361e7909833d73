// Package ingest applies external rate feed updates through asynq tasks.
// Updates for the same jurisdiction are serialized behind a redis lock so
// two workers never interleave a write and its cache sweep.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-levy/internal/lock"
	"github.com/noah-isme/backend-levy/internal/rates"
	"github.com/noah-isme/backend-levy/internal/tax"
)

// TaskApplyRate is the asynq task type for a single rate feed record.
const TaskApplyRate = "rates:apply"

// ApplyRatePayload is the wire format of a rate feed record.
type ApplyRatePayload struct {
	Jurisdiction     string     `json:"jurisdiction"`
	JurisdictionCode string     `json:"jurisdictionCode"`
	RateBps          int64      `json:"rateBps"`
	Categories       []string   `json:"categories,omitempty"`
	EffectiveFrom    time.Time  `json:"effectiveFrom"`
	EffectiveTo      *time.Time `json:"effectiveTo,omitempty"`
}

// NewApplyRateTask builds the asynq task for one feed record.
func NewApplyRateTask(payload ApplyRatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal payload: %w", err)
	}
	return asynq.NewTask(TaskApplyRate, data), nil
}

// Processor handles rate feed tasks.
type Processor struct {
	Admin  *rates.Admin
	Locker lock.Locker
	Logger *zerolog.Logger
	// LockTTL bounds how long one jurisdiction's feed lock may be held.
	// Zero means 30s.
	LockTTL time.Duration
}

// Register attaches the processor's handlers to mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskApplyRate, p.HandleApplyRate)
}

// HandleApplyRate applies one feed record. Validation failures are permanent;
// store outages are retried by asynq.
func (p *Processor) HandleApplyRate(ctx context.Context, task *asynq.Task) error {
	var payload ApplyRatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("ingest: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	code := strings.ToUpper(strings.TrimSpace(payload.JurisdictionCode))
	if code == "" {
		return fmt.Errorf("ingest: jurisdiction code missing: %w", asynq.SkipRetry)
	}

	apply := func(lctx context.Context) error {
		record, err := p.Admin.UpsertRate(lctx, rates.UpsertRateInput{
			Jurisdiction:     tax.ParseJurisdictionType(payload.Jurisdiction),
			JurisdictionCode: code,
			RateBps:          tax.Bps(payload.RateBps),
			Categories:       payload.Categories,
			EffectiveFrom:    payload.EffectiveFrom,
			EffectiveTo:      payload.EffectiveTo,
		})
		if err != nil {
			return err
		}
		if p.Logger != nil {
			p.Logger.Info().
				Str("rate_id", record.ID.String()).
				Str("jurisdiction_code", code).
				Int64("rate_bps", int64(record.RateBps)).
				Msg("applied rate feed record")
		}
		return nil
	}

	var err error
	if p.Locker.R != nil {
		err = p.Locker.WithLock(ctx, "ingest:rates:"+code, p.lockTTL(), apply)
	} else {
		err = apply(ctx)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, rates.ErrInvalidRate) {
		return fmt.Errorf("ingest: %v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (p *Processor) lockTTL() time.Duration {
	if p.LockTTL <= 0 {
		return 30 * time.Second
	}
	return p.LockTTL
}

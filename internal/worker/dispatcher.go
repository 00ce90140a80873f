// Package worker turns bus messages into document jobs and publishes their outcomes.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-ocr-worker/internal/job"
	"github.com/tendant/simple-ocr-worker/internal/metrics"
	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

type Publisher interface {
	PublishJSON(subject string, v any) error
}

type JobHandler interface {
	Handle(ctx context.Context, jobID string, req schema.JobRequest) (*schema.JobResponse, error)
}

type Dispatcher struct {
	handler       JobHandler
	pub           Publisher
	resultSubject string
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

func NewDispatcher(handler JobHandler, pub Publisher, resultSubject string, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handler:       handler,
		pub:           pub,
		resultSubject: resultSubject,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleMessage runs the job in data and publishes exactly one outcome to the
// result subject, and to reply when set.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte, reply string) *schema.JobOutcome {
	var event schema.JobEvent
	if err := json.Unmarshal(data, &event); err != nil {
		d.logger.Warn("invalid job message", "err", err, "bytes", len(data))
		d.metrics.JobErrored("input")
		outcome := &schema.JobOutcome{
			JobID: uuid.NewString(),
			Error: &schema.JobError{
				Kind:        "input",
				Message:     "invalid job message: " + err.Error(),
				FailureType: schema.FailureTypeValidation,
			},
		}
		d.publish(outcome, reply)
		return outcome
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	logger := d.logger.With("job_id", event.ID)
	logger.Info("received job", "has_output_dir", event.Input.OutputDir != "")

	outcome := &schema.JobOutcome{JobID: event.ID}
	resp, err := d.handler.Handle(ctx, event.ID, event.Input)
	if err != nil {
		jobErr := job.Classify(err)
		outcome.Error = &jobErr
	} else {
		outcome.Response = resp
	}
	d.publish(outcome, reply)
	return outcome
}

func (d *Dispatcher) publish(outcome *schema.JobOutcome, reply string) {
	outcome.HappenedAt = d.now().Unix()
	logger := d.logger.With("job_id", outcome.JobID)

	if d.resultSubject != "" {
		if err := d.pub.PublishJSON(d.resultSubject, outcome); err != nil {
			logger.Error("publish outcome", "subject", d.resultSubject, "err", err)
		}
	}
	if reply != "" {
		if err := d.pub.PublishJSON(reply, outcome); err != nil {
			logger.Error("reply outcome", "reply", reply, "err", err)
		}
	}
}

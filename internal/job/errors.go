package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tendant/simple-ocr-worker/internal/input"
	"github.com/tendant/simple-ocr-worker/internal/pipeline"
	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

// Stages that can fail outside of input resolution.
const (
	StageOutput   = "output"
	StageLock     = "lock"
	StagePipeline = "pipeline"
)

// StageError wraps a failure with the step of the job it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Classify converts a Handle error into the wire error reported to the host.
func Classify(err error) schema.JobError {
	out := schema.JobError{Message: err.Error(), Kind: "internal", FailureType: schema.FailureTypeRetryable}

	var ie *input.Error
	var se *StageError
	switch {
	case errors.As(err, &ie):
		out.Kind = string(ie.Kind)
		out.StatusCode = ie.StatusCode
		out.FailureType = inputFailureType(ie)
	case errors.Is(err, pipeline.ErrStart):
		out.Kind = StagePipeline
		out.FailureType = schema.FailureTypePermanent
	case errors.As(err, &se):
		out.Kind = se.Stage
	}

	if errors.Is(err, context.Canceled) {
		out.FailureType = schema.FailureTypeRetryable
	}
	return out
}

func inputFailureType(ie *input.Error) schema.FailureType {
	switch ie.Kind {
	case input.KindInput, input.KindDecode:
		return schema.FailureTypeValidation
	case input.KindNetwork:
		if ie.StatusCode == 0 || ie.StatusCode >= 500 || ie.StatusCode == http.StatusTooManyRequests || ie.StatusCode == http.StatusRequestTimeout {
			return schema.FailureTypeRetryable
		}
		return schema.FailureTypePermanent
	}
	return schema.FailureTypeRetryable
}

package queue

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
)

var validate = validator.New()

// validatingIngestor rejects a Spec that fails struct-tag validation
// before it ever reaches storage, so a malformed payload never
// occupies an idempotency-key slot.
type validatingIngestor struct {
	inner Ingestor
}

// NewValidatingIngestor wraps inner so that every Spec is validated via
// struct tags (see job.Spec) before being passed through. A failing
// Spec returns an error wrapping ErrValidation without calling inner.
func NewValidatingIngestor(inner Ingestor) Ingestor {
	return &validatingIngestor{inner: inner}
}

func (v *validatingIngestor) Ingest(ctx context.Context, spec job.Spec, delay time.Duration) (uuid.UUID, bool, error) {
	if err := validate.Struct(spec); err != nil {
		return uuid.UUID{}, false, joinValidation(err)
	}
	return v.inner.Ingest(ctx, spec, delay)
}

func joinValidation(err error) error {
	return &validationError{cause: err}
}

type validationError struct {
	cause error
}

func (e *validationError) Error() string {
	return ErrValidation.Error() + ": " + e.cause.Error()
}

func (e *validationError) Unwrap() error {
	return ErrValidation
}

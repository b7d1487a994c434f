package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

// ErrMalformedResponse is returned when a response does not hold a list of records
var ErrMalformedResponse = errors.New("malformed response from OCR service")

// Extractor turns bill images into table records
type Extractor interface {
	// Extract sends all images in one request and returns the extracted records in order
	Extract(ctx context.Context, images []acquisition.Image) ([]table.Record, error)
	// Close releases resources held by the extractor
	Close() error
}

// ServiceError is a non-success answer from the OCR service
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return e.Detail
}

// Message returns the human-readable reason for an extraction failure
func Message(err error) string {
	var svcErr *ServiceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &svcErr):
		return svcErr.Detail
	case errors.Is(err, ErrMalformedResponse):
		return ErrMalformedResponse.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "OCR service timed out"
	default:
		return err.Error()
	}
}

func statusDetail(code int, statusText string) string {
	return fmt.Sprintf("HTTP %d: %s", code, statusText)
}

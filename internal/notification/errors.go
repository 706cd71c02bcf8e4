package notification

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrDeliveryPanic = errors.New("deliverer panicked")

// DeliveryError is a per recipient failure. It never aborts a fan-out.
type DeliveryError struct {
	Recipient uuid.UUID
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

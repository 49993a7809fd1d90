package trainer

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrReentrant is returned by Run when the trainer is already running.
	ErrReentrant = errors.New("trainer: Run is not re-entrant")

	// ErrPrecondition is returned by Run when there is no execution context
	// or some trainable state has not been initialized.
	ErrPrecondition = errors.New("trainer: precondition not met")

	// ErrConfiguration is returned for invalid hook registrations.
	ErrConfiguration = errors.New("trainer: invalid configuration")

	// ErrNonFinite is returned when a metric becomes NaN or infinite and the
	// finite check is enabled.
	ErrNonFinite = errors.New("trainer: metric is not finite")
)

type manyErr []error

func (err manyErr) Error() string {
	var buf bytes.Buffer
	for _, e := range err {
		fmt.Fprintln(&buf, e.Error())
	}
	return buf.String()
}

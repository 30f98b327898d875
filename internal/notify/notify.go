// Package notify publishes the outcome of taxonomy pulls to external
// systems.
package notify

import (
	"context"
	"errors"

	"pys-backend/internal/pull"
)

// Multi fans a pull result out to every listener, all of them are called
// even when some fail.
type Multi []pull.Listener

func (m Multi) PullFinished(ctx context.Context, result pull.Result) error {
	var errs []error
	for _, l := range m {
		err := l.PullFinished(ctx, result)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

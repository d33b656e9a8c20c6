package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kjstillabower/circleci-coverage/internal/models"
)

// TaskRunner is the part of a host that executes tasks.
type TaskRunner interface {
	RunTask(name string, payload json.RawMessage) (any, error)
}

// Local delivers records to a host in the same process through the same JSON
// encoding a remote host would see.
func Local(runner TaskRunner, task string) DeliverFunc {
	return func(ctx context.Context, rec models.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := runner.RunTask(task, payload); err != nil {
			return fmt.Errorf("run task %s: %w", task, err)
		}
		return nil
	}
}

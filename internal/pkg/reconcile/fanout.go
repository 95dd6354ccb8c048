package reconcile

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// sideEffect is a post-commit task. Its failure never fails the pipeline.
type sideEffect struct {
	name string
	run  func(ctx context.Context) error
}

// fanout runs tasks in order, isolating each one. It returns the names of
// the tasks that failed.
func fanout(ctx context.Context, tasks ...sideEffect) []string {
	var failed []string
	for _, t := range tasks {
		if err := runIsolated(ctx, t); err != nil {
			log.Warnf("[Reconcile] %s failed: %v", t.name, err)
			failed = append(failed, t.name)
		}
	}
	return failed
}

func runIsolated(ctx context.Context, t sideEffect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.run(ctx)
}

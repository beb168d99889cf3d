package tracker

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/claimstack/errtrack/internal/models"
)

// CapturePanic records a recovered panic value as a runtime error. Runtime
// failures land under the javascript type, the script-error class of the
// taxonomy.
func (t *Tracker) CapturePanic(ctx context.Context, recovered any) string {
	message := fmt.Sprintf("%v", recovered)
	if err, ok := recovered.(error); ok {
		message = err.Error()
	}

	return t.Capture(ctx, Event{
		Type:     models.TypeJavaScript,
		Name:     "panic",
		Message:  message,
		Stack:    string(debug.Stack()),
		Severity: models.SeverityCritical,
		Tags:     []string{"panic"},
	})
}

// Recover is meant for deferred use at the top of a request or job handler:
// it captures any in-flight panic and swallows it.
//
//	defer tracker.Recover(ctx)
func (t *Tracker) Recover(ctx context.Context) {
	if r := recover(); r != nil {
		t.CapturePanic(ctx, r)
	}
}

// Go runs fn on a new goroutine with panic capture, the analog of a global
// unhandled-rejection handler for background work.
func (t *Tracker) Go(fn func()) {
	go func() {
		defer t.Recover(context.Background())
		fn()
	}()
}

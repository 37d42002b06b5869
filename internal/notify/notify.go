// Package notify implements the cycle orchestrator's outbound summary
// notification step. No teacher module has a dedicated notification
// abstraction — internal/autonomous's agents only leave "notify callback"
// comments — so this is built directly from spec.md §4.9's
// "notifier.send(summary)" step as a small interface with a structured-log
// default, consistent with the ambient zap logging used everywhere else.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Event is one outbound notification — a generated plan, a completed
// reflection, or a cycle failure.
type Event struct {
	Kind    string
	Message string
	Fields  map[string]string
}

// Notifier sends an Event somewhere a human or downstream system can see
// it. Cycle orchestrators depend on this interface rather than a concrete
// sink so tests can substitute a recording stub.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LogNotifier is the default Notifier: it writes every event to the
// structured logger at Info level. It never fails — logging is best-effort
// and must not make a cycle run fail on its account.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, event Event) error {
	fields := make([]zap.Field, 0, len(event.Fields)+1)
	fields = append(fields, zap.String("kind", event.Kind))
	for k, v := range event.Fields {
		fields = append(fields, zap.String(k, v))
	}
	n.logger.Info(event.Message, fields...)
	return nil
}

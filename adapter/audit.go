// Package adapter connects the component runtime to external systems.
package adapter

import (
	"go.uber.org/zap"

	"github.com/srediag/dscore/pkg/audit"
)

// ZapAudit writes audit events to a zap logger. Load failures and rollbacks are
// logged at warn, everything else at debug.
type ZapAudit struct {
	logger *zap.Logger
}

var _ audit.Logger = (*ZapAudit)(nil)

func NewZapAudit(logger *zap.Logger) *ZapAudit {
	return &ZapAudit{logger: logger}
}

// LogEvent implements audit.Logger.
func (a *ZapAudit) LogEvent(e audit.Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("component", e.Component),
		zap.String("library", e.Library),
	}
	if !e.Time.IsZero() {
		fields = append(fields, zap.Time("at", e.Time))
	}
	if e.Instance != 0 {
		fields = append(fields, zap.Uint64("instance", e.Instance))
	}
	if e.Method != "" {
		fields = append(fields, zap.String("method", e.Method))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	switch e.Kind {
	case audit.LoadFailed, audit.InstanceRolledBack:
		a.logger.Warn("lifecycle event", fields...)
	default:
		a.logger.Debug("lifecycle event", fields...)
	}
}

// Forward drains ring into a and returns how many events were forwarded.
func (a *ZapAudit) Forward(ring *audit.Ring) int {
	events := ring.Drain()
	for _, e := range events {
		a.LogEvent(e)
	}
	return len(events)
}

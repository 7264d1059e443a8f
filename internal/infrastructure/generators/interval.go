package generators

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/plaidhost/plaid/internal/domain/message"
	"github.com/plaidhost/plaid/internal/infrastructure/dispatcher"
)

// IntervalSpec is one interval-generator entry from data.toml.
type IntervalSpec struct {
	Name     string
	Schedule string // 6-field cron expression with seconds: sec min hour dom month dow
	LogType  string
}

// IntervalGenerator ticks each configured schedule, emitting an
// Interval-sourced message with an empty payload. Backpressure (spec.md
// §6): a saturated dispatcher drops the tick with a log rather than
// blocking the cron scheduler.
type IntervalGenerator struct {
	specs []IntervalSpec
}

func NewIntervalGenerator(specs []IntervalSpec) *IntervalGenerator {
	return &IntervalGenerator{specs: specs}
}

func (g *IntervalGenerator) Name() string { return "interval" }

func (g *IntervalGenerator) Run(ctx context.Context, sink Sink) error {
	c := cron.New(cron.WithSeconds())
	for _, spec := range g.specs {
		spec := spec
		_, err := c.AddFunc(spec.Schedule, func() {
			msg := message.Message{
				LogType: spec.LogType,
				Source:  message.Interval(spec.Schedule),
			}
			if err := sink.Enqueue(ctx, msg); err != nil {
				if err == dispatcher.ErrSaturated {
					slog.WarnContext(ctx, "interval tick dropped, dispatcher saturated", "name", spec.Name)
					return
				}
				slog.ErrorContext(ctx, "interval enqueue failed", "name", spec.Name, "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

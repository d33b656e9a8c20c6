// Package collector derives, per test, which files gained statement hits while the
// test ran. It runs in the same execution context as the code under test.
package collector

import (
	"go.uber.org/zap"

	"github.com/kjstillabower/circleci-coverage/internal/models"
)

// ExposedFlag is the host-exposed key that turns collection on.
const ExposedFlag = "circleciCoverageEnabled"

// Sender hands a record to the aggregator. Implementations must not block on delivery.
type Sender interface {
	Send(rec models.Record)
}

// Env is what a collector can see of its surroundings during one hook call.
type Env struct {
	// Enabled is the flag propagated from the host's activation decision.
	Enabled bool
	// Coverage is the live counter map; nil when instrumentation is not active.
	Coverage models.CoverageMap
	// Test is the test currently executing.
	Test   models.TestInfo
	Sender Sender
}

// Collector holds the baseline snapshot between OnTestStart and OnTestEnd.
// One Collector serves one execution context; hooks must not overlap.
type Collector struct {
	baseline models.CoverageMap
	logger   *zap.Logger
}

// New returns a Collector. A nil logger disables logging.
func New(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// OnTestStart snapshots the live counters as the baseline for the test about to run.
func (c *Collector) OnTestStart(env Env) {
	if !env.Enabled || env.Coverage == nil {
		return
	}
	c.baseline = env.Coverage.Clone()
}

// OnTestEnd diffs the live counters against the baseline and sends one record for the
// finished test. Without a baseline there is nothing to diff and nothing is sent.
func (c *Collector) OnTestEnd(env Env) {
	if !env.Enabled || env.Coverage == nil || c.baseline == nil {
		return
	}

	covered := CoveredFiles(env.Coverage, c.baseline)
	c.baseline = nil

	rec := models.Record{
		CoveredFiles: covered,
		Title:        env.Test.Title,
		SpecPath:     env.Test.SpecPath,
	}
	if env.Sender == nil {
		return
	}
	c.logger.Debug("coverage record sent",
		zap.String("spec", rec.SpecPath),
		zap.String("title", rec.Title),
		zap.Int("covered_files", len(covered)))
	env.Sender.Send(rec)
}

// HasBaseline reports whether a snapshot is waiting for OnTestEnd.
func (c *Collector) HasBaseline() bool {
	return c.baseline != nil
}

// Flag reads the collection flag from a host's exposed configuration. Anything other
// than a boolean true leaves collection off.
func Flag(exposed map[string]any) bool {
	v, ok := exposed[ExposedFlag].(bool)
	return ok && v
}

// Package observe carries calculation telemetry out of the engine.
package observe

import (
	"time"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Observer receives timings from parsing, compilation, evaluation and
// recalculation. implementations must be safe for concurrent use since
// level workers report in parallel.
type Observer interface {
	ObserveParse(d time.Duration, err error)
	ObserveCompile(d time.Duration)
	ObserveCacheLookup(hit bool)
	ObserveEvaluate(d time.Duration, result value.Value)
	ObserveRecalculate(stats RecalcStats, d time.Duration)
}

// RecalcStats summarizes one Recalculate call.
type RecalcStats struct {
	Cells      int
	Levels     int
	CycleCells int
	Spills     int
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveParse(time.Duration, error)             {}
func (Nop) ObserveCompile(time.Duration)                  {}
func (Nop) ObserveCacheLookup(bool)                       {}
func (Nop) ObserveEvaluate(time.Duration, value.Value)    {}
func (Nop) ObserveRecalculate(RecalcStats, time.Duration) {}

var _ Observer = Nop{}

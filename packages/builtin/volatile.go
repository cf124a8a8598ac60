package builtin

import (
	"math"
	"time"

	"github.com/vogtb/go-spreadsheet/packages/eval"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// serial dates count days from December 30, 1899
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const msPerDay = 86400000

func serial(t time.Time) float64 {
	return float64(t.UnixMilli()-excelEpoch.UnixMilli()) / msPerDay
}

// NOW returns the current time as a serial date.
func (bf *BuiltInFunctions) NOW(*eval.Context, []value.Value) value.Value {
	return value.Number(serial(bf.clock.Now()))
}

// TODAY returns the serial date of the current day.
func (bf *BuiltInFunctions) TODAY(*eval.Context, []value.Value) value.Value {
	now := bf.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return value.Number(math.Floor(serial(midnight)))
}

func (bf *BuiltInFunctions) RAND(*eval.Context, []value.Value) value.Value {
	return value.Number(bf.rng.Float64())
}

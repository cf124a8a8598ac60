package engine

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Settings is the workbook-level calculation configuration.
type Settings struct {
	// Leveled plans recalculation as dependency levels instead of one flat
	// order. Parallel evaluates the cells of a level concurrently on Workers
	// goroutines (0 means GOMAXPROCS).
	Leveled  bool `toml:"leveled" json:"leveled"`
	Parallel bool `toml:"parallel" json:"parallel"`
	Workers  int  `toml:"workers" json:"workers"`

	// DynamicArrays lets array results spill into neighbouring cells.
	// without it they are reduced by implicit intersection.
	DynamicArrays bool `toml:"dynamic_arrays" json:"dynamicArrays"`

	// Iterative resolves cycles by repeated evaluation instead of stamping
	// #CIRC!, stopping after MaxIterations passes or once the largest change
	// is within Tolerance.
	Iterative     bool    `toml:"iterative" json:"iterative"`
	MaxIterations int     `toml:"max_iterations" json:"maxIterations"`
	Tolerance     float64 `toml:"tolerance" json:"tolerance"`

	// Locale is the BCP 47 tag used to read numbers out of text. empty
	// means '.' decimals with no grouping.
	Locale       string `toml:"locale" json:"locale"`
	StripPercent bool   `toml:"strip_percent" json:"stripPercent"`

	// ShareFormulas reuses one parsed tree for cells with identical formula
	// text. turn it off for parsers whose output depends on the cell.
	ShareFormulas bool `toml:"share_formulas" json:"shareFormulas"`
}

// DefaultSettings returns leveled parallel recalculation with spilling and
// #CIRC! stamping.
func DefaultSettings() Settings {
	return Settings{
		Leveled:       true,
		Parallel:      true,
		DynamicArrays: true,
		MaxIterations: 100,
		Tolerance:     0.001,
		StripPercent:  true,
		ShareFormulas: true,
	}
}

// LoadSettings reads TOML settings from path on top of the defaults.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	return ParseSettings(string(data))
}

// ParseSettings decodes TOML settings on top of the defaults. unknown keys
// are rejected.
func ParseSettings(text string) (Settings, error) {
	s := DefaultSettings()
	md, err := toml.Decode(text, &s)
	if err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Settings{}, fmt.Errorf("unknown settings: %s", strings.Join(keys, ", "))
	}
	return s, s.Validate()
}

// Validate checks the numeric bounds and the locale.
func (s Settings) Validate() error {
	var errs []error
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", s.Workers))
	}
	if s.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations must be at least 1, got %d", s.MaxIterations))
	}
	if s.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("tolerance must not be negative, got %g", s.Tolerance))
	}
	if _, err := s.numberFormat(); err != nil {
		errs = append(errs, fmt.Errorf("locale %q: %w", s.Locale, err))
	}
	return errors.Join(errs...)
}

func (s Settings) numberFormat() (value.NumberFormat, error) {
	if s.Locale == "" {
		f := value.Invariant
		f.StripPercent = s.StripPercent
		return f, nil
	}
	return value.NewNumberFormat(s.Locale, s.StripPercent)
}

func (s Settings) workers() int {
	if !s.Parallel {
		return 1
	}
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

package cli

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"

	"github.com/vogtb/go-spreadsheet/packages/engine"
	"github.com/vogtb/go-spreadsheet/packages/host"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

// Document is a workbook file. cells map A1 addresses to constants or to
// formula text starting with "=".
type Document struct {
	Mode     string            `toml:"mode" json:"mode,omitempty"`
	Settings engine.Settings   `toml:"settings" json:"settings"`
	Sheets   []SheetSpec       `toml:"sheets" json:"sheets"`
	Names    map[string]string `toml:"names" json:"names,omitempty"`
	Tables   []TableSpec       `toml:"tables" json:"tables,omitempty"`
}

type SheetSpec struct {
	Name  string            `toml:"name" json:"name"`
	Mode  string            `toml:"mode" json:"mode,omitempty"`
	Cells map[string]any    `toml:"cells" json:"cells,omitempty"`
	Names map[string]string `toml:"names" json:"names,omitempty"`
}

type TableSpec struct {
	Name    string   `toml:"name" json:"name"`
	Range   string   `toml:"range" json:"range"`
	Columns []string `toml:"columns" json:"columns"`
}

// LoadDocument reads a TOML, YAML or JSON workbook file, chosen by
// extension.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return ParseDocument(data, "toml")
	case ".yaml", ".yml", ".json":
		return ParseDocument(data, "yaml")
	default:
		return nil, fmt.Errorf("file %q must have a .toml, .yaml, .yml or .json extension", path)
	}
}

// ParseDocument decodes a workbook file over the default settings.
// unknown keys are errors in both formats.
func ParseDocument(data []byte, format string) (*Document, error) {
	doc := &Document{Settings: engine.DefaultSettings()}
	switch format {
	case "toml":
		md, err := toml.Decode(string(data), doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	case "yaml":
		if err := yaml.UnmarshalStrict(data, doc); err != nil {
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err := doc.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if len(doc.Sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return doc, nil
}

// Build creates a spreadsheet holding the document. nothing is calculated
// yet.
func (d *Document) Build(log logr.Logger) (*spreadsheet.Spreadsheet, error) {
	mode, err := host.ParseCalculationMode(d.Mode)
	if err != nil {
		return nil, err
	}
	s, err := spreadsheet.NewSpreadsheet(
		spreadsheet.WithSettings(d.Settings),
		spreadsheet.WithLogger(log),
		spreadsheet.WithCalculationMode(mode),
	)
	if err != nil {
		return nil, err
	}

	for _, sheet := range d.Sheets {
		if err := s.AddWorksheet(sheet.Name); err != nil {
			return nil, err
		}
		if sheet.Mode != "" {
			m, err := host.ParseCalculationMode(sheet.Mode)
			if err != nil {
				return nil, fmt.Errorf("sheet %q: %w", sheet.Name, err)
			}
			if err := s.SetCalculationMode(sheet.Name, m); err != nil {
				return nil, err
			}
		}
	}
	for _, table := range d.Tables {
		if err := s.AddTable(table.Name, table.Range, table.Columns...); err != nil {
			return nil, fmt.Errorf("table %q: %w", table.Name, err)
		}
	}
	for _, sheet := range d.Sheets {
		for _, address := range slices.Sorted(maps.Keys(sheet.Cells)) {
			if err := s.Set(qualify(sheet.Name, address), sheet.Cells[address]); err != nil {
				return nil, fmt.Errorf("%s!%s: %w", sheet.Name, address, err)
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(d.Names)) {
		if err := s.DefineName(name, d.Names[name]); err != nil {
			return nil, fmt.Errorf("name %q: %w", name, err)
		}
	}
	for _, sheet := range d.Sheets {
		for _, name := range slices.Sorted(maps.Keys(sheet.Names)) {
			if err := s.DefineSheetName(sheet.Name, name, sheet.Names[name]); err != nil {
				return nil, fmt.Errorf("sheet %q name %q: %w", sheet.Name, name, err)
			}
		}
	}
	return s, nil
}

// qualify prefixes an address with its sheet unless it names one already
func qualify(sheet, address string) string {
	if strings.Contains(address, "!") {
		return address
	}
	return value.QuoteSheet(sheet) + "!" + address
}

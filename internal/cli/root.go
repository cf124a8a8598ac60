package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate spreadsheet workbooks from the command line",
		Long: `calc loads a workbook described in TOML, YAML or JSON, recalculates
every formula and prints the results.

A workbook file lists sheets with their cells, defined names and tables.
Cells holding text that starts with "=" are formulas.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
		},
	}
	rootCmd.PersistentFlags().CountP("verbose", "v", "Log calculation progress (repeat for engine traces)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	evalCmd := &cobra.Command{
		Use:   "eval <file> [address...]",
		Short: "Recalculate a workbook and print cell values",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunEval,
	}
	evalCmd.Flags().StringArray("set", nil, "Override a cell before calculating, e.g. --set Sheet1!A1=5 or --set 'B2==A1*2'")

	orderCmd := &cobra.Command{
		Use:   "order <file>",
		Short: "Print the evaluation order of a workbook by dependency level",
		Args:  cobra.ExactArgs(1),
		RunE:  RunOrder,
	}

	depsCmd := &cobra.Command{
		Use:   "deps <file> <address>",
		Short: "Print the direct precedents and dependents of a cell",
		Args:  cobra.ExactArgs(2),
		RunE:  RunDeps,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "calc %s\n", version)
		},
	}

	rootCmd.AddCommand(evalCmd, orderCmd, depsCmd, versionCmd)
	return rootCmd
}

// load reads, builds and applies overrides, leaving the workbook
// uncalculated
func load(cmd *cobra.Command, path string, overrides []string) (*spreadsheet.Spreadsheet, logr.Logger, error) {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	log := newLogger(cmd.ErrOrStderr(), verbosity)

	doc, err := LoadDocument(path)
	if err != nil {
		return nil, log, err
	}
	s, err := doc.Build(log)
	if err != nil {
		return nil, log, err
	}
	for _, o := range overrides {
		address, raw, ok := strings.Cut(o, "=")
		if !ok || strings.TrimSpace(address) == "" {
			return nil, log, fmt.Errorf("override %q must look like ADDRESS=VALUE", o)
		}
		if err := s.Set(address, parsePrimitive(raw)); err != nil {
			return nil, log, fmt.Errorf("override %s: %w", address, err)
		}
	}
	return s, log, nil
}

// parsePrimitive reads a command-line cell value: numbers, TRUE and FALSE,
// anything else is text
func parsePrimitive(raw string) spreadsheet.Primitive {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	switch strings.ToUpper(raw) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return raw
}

func RunEval(cmd *cobra.Command, args []string) error {
	overrides, _ := cmd.Flags().GetStringArray("set")
	s, log, err := load(cmd, args[0], overrides)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Calculate(); err != nil {
		return err
	}
	res := s.LastResult()
	stats := s.Engine().FormulaStats()
	log.Info("calculated", "cells", len(res.Order), "levels", len(res.Levels), "cycle", len(res.Cycle),
		"spills", res.Spills, "formulas", stats.Cells, "sharedFormulas", stats.Shared, "duration", res.Duration)

	tbl := newTable(cmd, "Cell", "Value", "Formula")
	if len(args) > 1 {
		for _, address := range args[1:] {
			cell, err := s.Cell(address)
			if err != nil {
				return err
			}
			tbl.AddRow(address, display(cell), cell.Formula)
		}
		tbl.Print()
		return nil
	}

	wb := s.Workbook()
	for _, name := range s.ListWorksheets() {
		ws, ok := wb.Sheet(name)
		if !ok {
			continue
		}
		for _, addr := range ws.Cells() {
			v := ws.Value(addr.Row, addr.Column)
			formula := ws.FormulaText(addr.Row, addr.Column)
			if formula == "" {
				if anchor, ok := s.Engine().SpillOwner(addr); ok && anchor != addr {
					formula = "spilled from " + anchor.String()
				}
			}
			tbl.AddRow(addr.String(), v.String(), formula)
		}
	}
	tbl.Print()
	return nil
}

func RunOrder(cmd *cobra.Command, args []string) error {
	s, _, err := load(cmd, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Calculate(); err != nil {
		return err
	}
	res := s.LastResult()
	levels := res.Levels
	if len(levels) == 0 && len(res.Order) > 0 {
		levels = [][]value.CellAddress{res.Order}
	}

	out := cmd.OutOrStdout()
	tbl := newTable(cmd, "Level", "Cells")
	for i, level := range levels {
		tbl.AddRow(i, joinCells(level))
	}
	tbl.Print()
	if res.HasCycle() {
		fmt.Fprintln(out, color.YellowString("cycle: %s", joinCells(res.Cycle)))
		if res.Iterations > 0 {
			fmt.Fprintf(out, "iterations: %d converged: %v\n", res.Iterations, res.Converged)
		}
	}
	return nil
}

func RunDeps(cmd *cobra.Command, args []string) error {
	s, _, err := load(cmd, args[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()
	precedents, err := s.Precedents(args[1])
	if err != nil {
		return err
	}
	dependents, err := s.Dependents(args[1])
	if err != nil {
		return err
	}
	tbl := newTable(cmd, "Direction", "Cells")
	tbl.AddRow("precedents", strings.Join(precedents, ", "))
	tbl.AddRow("dependents", strings.Join(dependents, ", "))
	tbl.Print()
	return nil
}

func newTable(cmd *cobra.Command, columns ...interface{}) table.Table {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	columnFmt := color.New(color.FgYellow).SprintfFunc()
	return table.New(columns...).
		WithHeaderFormatter(headerFmt).
		WithFirstColumnFormatter(columnFmt).
		WithWriter(cmd.OutOrStdout())
}

func display(cell spreadsheet.CellValue) string {
	switch v := cell.Value.(type) {
	case nil:
		return ""
	case float64:
		return value.FormatNumber(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func joinCells(cells []value.CellAddress) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

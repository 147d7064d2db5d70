package check

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// EngineResult is the outcome of pinging one configured engine
type EngineResult struct {
	Engine  string
	Tags    []string
	Default bool
	Err     error
}

// SchemaState is what the check learned about the migrations folder and the
// recorded schema version of the default engine
type SchemaState struct {
	Inspected bool
	Version   int
	Recorded  bool
	Scripts   int
	Pending   int
	Err       error
}

// Report collects the config file, validation, engine and schema results of
// one check and prints the verdict
type Report struct {
	out         io.Writer
	ConfigFile  *FileCheckResult
	Validations []ValidationResult
	Engines     []EngineResult
	Schema      SchemaState
}

// NewReport creates a report printing to out
func NewReport(out io.Writer) *Report {
	return &Report{out: out}
}

// AddFileResult records the configuration file check
func (r *Report) AddFileResult(result FileCheckResult) {
	r.ConfigFile = &result
}

// AddValidationResult records a config or database validation
func (r *Report) AddValidationResult(result ValidationResult) {
	r.Validations = append(r.Validations, result)
}

// AddEngine records the ping of one engine
func (r *Report) AddEngine(result EngineResult) {
	r.Engines = append(r.Engines, result)
}

// SetSchema records the schema inspection
func (r *Report) SetSchema(state SchemaState) {
	r.Schema = state
}

// ReportSummary condenses a Report
type ReportSummary struct {
	ConfigCreated      bool
	ConfigMissing      bool
	ValidationErrors   int
	EnginesReachable   int
	EnginesUnreachable int
	PendingMigrations  int
	HasErrors          bool
	HasWarnings        bool
}

// Summary computes the counters printed by Print
func (r *Report) Summary() ReportSummary {
	var s ReportSummary

	if f := r.ConfigFile; f != nil {
		s.ConfigCreated = f.Created
		s.ConfigMissing = !f.Exists
		if f.Error != nil {
			s.HasErrors = true
		}
	}
	for _, v := range r.Validations {
		if !v.Valid {
			s.ValidationErrors++
			s.HasErrors = true
		}
		if len(v.Warnings) > 0 {
			s.HasWarnings = true
		}
	}
	for _, e := range r.Engines {
		if e.Err != nil {
			s.EnginesUnreachable++
			s.HasErrors = true
		} else {
			s.EnginesReachable++
		}
	}
	s.PendingMigrations = r.Schema.Pending
	if s.PendingMigrations > 0 || r.Schema.Err != nil || s.ConfigMissing {
		s.HasWarnings = true
	}
	return s
}

// Print prints a separator and the one-line verdict
func (r *Report) Print() {
	rule := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	fmt.Fprintln(r.out, rule.Render(strings.Repeat("─", 50)))

	s := r.Summary()
	switch {
	case s.HasErrors:
		color.New(color.FgRed, color.Bold).Fprint(r.out, "✗ Check failed")
	case s.HasWarnings:
		color.New(color.FgYellow, color.Bold).Fprint(r.out, "⚠ Check passed with warnings")
	default:
		color.New(color.FgGreen, color.Bold).Fprint(r.out, "✓ Check passed")
	}

	details := r.details(s)
	if len(details) == 0 {
		fmt.Fprintln(r.out)
		return
	}
	fmt.Fprintf(r.out, ": %s\n", strings.Join(details, ", "))
}

func (r *Report) details(s ReportSummary) []string {
	var details []string
	switch {
	case s.ConfigCreated:
		details = append(details, "config created from template")
	case s.ConfigMissing:
		details = append(details, "no config file, defaults apply")
	}
	if s.ValidationErrors > 0 {
		details = append(details, fmt.Sprintf("%d validation error(s)", s.ValidationErrors))
	}
	if n := len(r.Engines); n > 0 {
		details = append(details, fmt.Sprintf("%d/%d engine(s) reachable", s.EnginesReachable, n))
	}

	schema := r.Schema
	switch {
	case !schema.Inspected:
	case schema.Err != nil:
		details = append(details, "schema not inspected")
	case schema.Recorded:
		details = append(details, fmt.Sprintf("schema at version %d", schema.Version))
	case schema.Scripts > 0:
		details = append(details, "no schema version recorded")
	}
	if s.PendingMigrations > 0 {
		details = append(details, fmt.Sprintf("%d pending migration(s)", s.PendingMigrations))
	}
	return details
}

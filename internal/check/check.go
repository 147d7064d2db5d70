// Package check provides interactive environment checking and initialization.
// It helps users set up a local gormscope configuration and verifies the
// configured database before the server starts.
package check

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// CheckResult represents the result of a non-interactive environment check
type CheckResult struct {
	// Success indicates whether all required checks passed
	Success bool
	// Errors contains critical errors that prevent server startup
	Errors []string
	// Warnings contains non-critical issues that don't block startup
	Warnings []string
	// Suggestions contains helpful tips for fixing issues
	Suggestions []string
}

// ConfirmFunc asks the user a yes/no question
type ConfirmFunc func(title string) (bool, error)

// Checker handles environment checking and initialization
type Checker struct {
	// configPath is the configuration file to check
	configPath string
	out        io.Writer
	confirm    ConfirmFunc
	// report collects check results for final output
	report *Report
}

// Option customises a Checker
type Option func(*Checker)

// WithOutput sets the writer the checker prints to
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.out = w }
}

// WithConfirm replaces the interactive prompt
func WithConfirm(fn ConfirmFunc) Option {
	return func(c *Checker) { c.confirm = fn }
}

// NewChecker creates a new environment checker for the configuration at configPath
func NewChecker(configPath string, opts ...Option) *Checker {
	c := &Checker{
		configPath: configPath,
		out:        os.Stdout,
		confirm:    confirmCreate,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.report = NewReport(c.out)
	return c
}

// Report returns the results collected by the last Run
func (c *Checker) Report() *Report {
	return c.report
}

// Run executes the full environment check
func (c *Checker) Run(ctx context.Context) error {
	c.printHeader()

	// Step 1: Check and create the configuration file
	fmt.Fprintln(c.out)
	c.printSection("Checking configuration files")
	if err := c.checkFiles(); err != nil {
		return fmt.Errorf("file check failed: %w", err)
	}

	// Step 2: Validate configuration
	fmt.Fprintln(c.out)
	c.printSection("Validating configuration")
	cfgResult, cfg := c.validateConfig()
	c.report.AddValidationResult(cfgResult)
	c.printValidationResult(cfgResult)
	if !cfgResult.Valid {
		fmt.Fprintln(c.out)
		c.report.Print()
		return fmt.Errorf("config validation failed: %w", cfgResult.Error)
	}

	// Step 3: Connect and inspect the schema
	fmt.Fprintln(c.out)
	c.printSection("Checking database")
	dbResult := c.checkDatabase(ctx, cfg)
	c.report.AddValidationResult(dbResult)
	c.printValidationResult(dbResult)

	fmt.Fprintln(c.out)
	c.report.Print()

	if !dbResult.Valid {
		return fmt.Errorf("database check failed: %w", dbResult.Error)
	}
	return nil
}

// printHeader prints the welcome header
func (c *Checker) printHeader() {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	fmt.Fprintln(c.out, titleStyle.Render("gormscope Environment Check"))
}

// printSection prints a section header
func (c *Checker) printSection(title string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15"))
	fmt.Fprintln(c.out, style.Render(title+"..."))
}

// ConfigPath returns the path to the checked configuration file
func (c *Checker) ConfigPath() string {
	return c.configPath
}

// confirmCreate asks user to confirm with a huh form
func confirmCreate(title string) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()
	if err != nil {
		return false, err
	}
	return confirm, nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RunNonInteractive performs a non-interactive environment check.
// Unlike Run(), this method does not prompt for user input and does not create files.
func (c *Checker) RunNonInteractive(ctx context.Context) *CheckResult {
	result := &CheckResult{
		Success:     true,
		Errors:      make([]string, 0),
		Warnings:    make([]string, 0),
		Suggestions: make([]string, 0),
	}

	// A missing file is not fatal: the defaults and GORMSCOPE_* overrides apply
	if !fileExists(c.configPath) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Configuration file not found: %s (using defaults)", c.configPath))
		result.Suggestions = append(result.Suggestions,
			"Run 'gormscope check' to create it from the template")
	}

	cfgResult, cfg := c.validateConfig()
	if !cfgResult.Valid {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid configuration: %v", cfgResult.Error))
		return result
	}

	dbResult := c.checkDatabase(ctx, cfg)
	if !dbResult.Valid {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("Database check failed: %v", dbResult.Error))
	}
	result.Warnings = append(result.Warnings, dbResult.Warnings...)
	if len(dbResult.Warnings) > 0 {
		result.Suggestions = append(result.Suggestions,
			"Run 'gormscope db migrate' to apply pending migrations")
	}

	return result
}

// PrintCheckResult prints the check result in a formatted way
func PrintCheckResult(w io.Writer, result *CheckResult) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		red.Fprintln(w, "[ERROR] Environment check failed")
		fmt.Fprintln(w)
		for _, err := range result.Errors {
			red.Fprintf(w, "  ✗ %s\n", err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "[WARNING] Configuration warnings:")
		fmt.Fprintln(w)
		for _, warn := range result.Warnings {
			yellow.Fprintf(w, "  ⚠ %s\n", warn)
		}
	}

	if len(result.Suggestions) > 0 {
		cyan.Fprintln(w, "\nTo fix these issues:")
		for _, suggestion := range result.Suggestions {
			fmt.Fprintf(w, "  → %s\n", suggestion)
		}
	}

	fmt.Fprintln(w)
}

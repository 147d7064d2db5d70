package check

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/gormscope/gormscope/internal/configfiles"
)

// FileCheckResult represents the result of a file check
type FileCheckResult struct {
	Path        string
	Exists      bool
	Created     bool
	Description string
	Error       error
}

// checkFiles checks the configuration file and offers to create it from the
// embedded template when missing
func (c *Checker) checkFiles() error {
	result := FileCheckResult{
		Path:        c.configPath,
		Description: "Configuration file (server, database, logging, telemetry)",
	}
	defer func() { c.report.AddFileResult(result) }()

	if fileExists(c.configPath) {
		result.Exists = true
		c.printFileStatus(c.configPath, true)
		return nil
	}
	c.printFileStatus(c.configPath, false)

	confirm, err := c.confirm(fmt.Sprintf("Create %s from template?", c.configPath))
	if err != nil {
		result.Error = fmt.Errorf("failed to get user confirmation: %w", err)
		return result.Error
	}
	if !confirm {
		// User declined, the defaults apply
		return nil
	}

	created, err := configfiles.InitConfig(c.configPath)
	if err != nil {
		result.Error = fmt.Errorf("failed to create file %s: %w", c.configPath, err)
		return result.Error
	}
	result.Created = created
	result.Exists = true
	color.New(color.FgGreen).Fprintf(c.out, "  ✓ Created %s\n", c.configPath)
	return nil
}

// printFileStatus prints the status of a file check
func (c *Checker) printFileStatus(path string, exists bool) {
	if exists {
		color.New(color.FgGreen).Fprintf(c.out, "  ✓ %s\n", path)
		return
	}
	color.New(color.FgYellow).Fprintf(c.out, "  ⚠ %s does not exist\n", path)
}

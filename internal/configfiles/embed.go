// Package configfiles provides the embedded configuration template used to
// initialize a user configuration.
package configfiles

import (
	"embed"
	"os"
	"path/filepath"
)

//go:embed gormscope.example.yaml
var configFS embed.FS

// ExampleName is the file name of the embedded configuration template
const ExampleName = "gormscope.example.yaml"

// GetConfigExample returns the example configuration file content
func GetConfigExample() ([]byte, error) {
	return configFS.ReadFile(ExampleName)
}

// InitConfig writes the example configuration to path unless a file already
// exists there. created reports whether the file was written.
func InitConfig(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	data, err := GetConfigExample()
	if err != nil {
		return false, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

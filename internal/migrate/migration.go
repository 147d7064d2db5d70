// Package migrate runs versioned SQL migration scripts on top of GORM and
// generates initial migrations from model schemas.
//
// A migrations folder holds files named <version>_<name>.sql where version
// is a non-negative integer. The last applied version is stored in the
// schema_version table.
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/gormscope/gormscope/pkg/errors"
)

var filenamePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// Migration is one versioned script
type Migration struct {
	Version int
	Name    string
	Path    string
}

// Filename returns the base name of the script
func (m Migration) Filename() string {
	return filepath.Base(m.Path)
}

// FormatFilename builds the file name of a generated script
func FormatFilename(version int, name string) string {
	return fmt.Sprintf("%03d_%s.sql", version, name)
}

// Load lists the scripts in dir sorted by version. A missing directory
// holds no scripts. Two scripts sharing a version are an error.
func Load(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBMigration, "failed to read migrations folder", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		m := filenamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, errors.New(errors.ErrCodeDBMigration,
				fmt.Sprintf("migration file %s does not match <version>_<name>.sql", entry.Name()))
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDBMigration, "invalid migration version in "+entry.Name(), err)
		}
		if prev, ok := seen[version]; ok {
			return nil, errors.New(errors.ErrCodeDBMigration,
				fmt.Sprintf("migrations %s and %s share version %d", prev, entry.Name(), version))
		}
		seen[version] = entry.Name()
		migrations = append(migrations, Migration{
			Version: version,
			Name:    m[2],
			Path:    filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// NextVersion returns one past the highest version in dir, starting at 1
func NextVersion(dir string) (int, error) {
	migrations, err := Load(dir)
	if err != nil {
		return 0, err
	}
	if len(migrations) == 0 {
		return 1, nil
	}
	return migrations[len(migrations)-1].Version + 1, nil
}

// NewMigration writes an empty script named after name. A nil version picks
// the next free version.
func NewMigration(dir, name string, version *int) (Migration, error) {
	slug := Slugify(name)
	if slug == "" {
		return Migration{}, errors.ErrValidation("migration name is empty")
	}
	return writeScript(dir, slug, version, "-- "+name+"\n")
}

func writeScript(dir, name string, requested *int, content string) (Migration, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Migration{}, errors.Wrap(errors.ErrCodeDBMigration, "failed to create migrations folder", err)
	}

	existing, err := Load(dir)
	if err != nil {
		return Migration{}, err
	}
	var version int
	switch {
	case requested == nil:
		if version, err = NextVersion(dir); err != nil {
			return Migration{}, err
		}
	case *requested < 0:
		return Migration{}, errors.ErrValidation(fmt.Sprintf("migration version %d is negative", *requested))
	default:
		version = *requested
	}
	for _, m := range existing {
		if m.Version == version {
			return Migration{}, errors.New(errors.ErrCodeMigrationExists,
				fmt.Sprintf("migration version %d already exists (%s)", version, m.Filename()))
		}
	}

	path := filepath.Join(dir, FormatFilename(version, name))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Migration{}, errors.Wrap(errors.ErrCodeDBMigration, "failed to write migration", err)
	}
	return Migration{Version: version, Name: name, Path: path}, nil
}

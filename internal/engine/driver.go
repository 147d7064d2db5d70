package engine

import (
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/gormscope/gormscope/pkg/errors"
)

// Driver 定义数据库驱动接口，用于支持多种数据库
// Driver defines the database driver interface for supporting multiple databases
type Driver interface {
	// Name 返回驱动名称（如 "sqlite", "postgres", "mysql"）
	// Name returns the driver name (e.g., "sqlite", "postgres", "mysql")
	Name() string

	// Open 根据连接URI返回GORM方言，连接级设置写入DSN
	// Open turns a connection URI into a GORM dialector. Per-connection
	// settings go into the DSN so every pooled connection carries them.
	Open(uri string, opts Options) (gorm.Dialector, error)

	// Configure 在连接打开后应用连接池配置
	// Configure applies pool settings once the connection is open
	Configure(db *gorm.DB, opts Options) error
}

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{}
)

func init() {
	RegisterDriver(&SQLiteDriver{}, "sqlite", "sqlite3")
	RegisterDriver(&PostgresDriver{}, "postgres", "postgresql")
	RegisterDriver(&MySQLDriver{}, "mysql")
}

// RegisterDriver makes d available for the given URI schemes.
func RegisterDriver(d Driver, schemes ...string) {
	driversMu.Lock()
	defer driversMu.Unlock()
	for _, scheme := range schemes {
		drivers[strings.ToLower(scheme)] = d
	}
}

// DriverFor returns the driver serving uri's scheme.
func DriverFor(uri string) (Driver, error) {
	scheme, _, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	driversMu.RLock()
	d, ok := drivers[scheme]
	driversMu.RUnlock()
	if !ok {
		return nil, errors.ErrConfiguration(fmt.Sprintf("unsupported database scheme %q", scheme))
	}
	return d, nil
}

// splitURI splits "scheme://rest".
func splitURI(uri string) (scheme, rest string, err error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", "", errors.ErrConfiguration("database uri is empty")
	}
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return "", "", errors.ErrConfiguration(fmt.Sprintf("database uri %q has no scheme", uri))
	}
	return strings.ToLower(uri[:idx]), uri[idx+3:], nil
}

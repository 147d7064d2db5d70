package engine

import (
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gormscope/gormscope/pkg/logger"
)

// MemoryDSN is the sqlite DSN of a private in-memory database
const MemoryDSN = ":memory:"

// SQLiteDriver SQLite数据库驱动（纯Go实现，无需cgo）
// SQLiteDriver implements the Driver interface for SQLite (pure Go, no cgo)
type SQLiteDriver struct{}

// Name returns the driver name
func (d *SQLiteDriver) Name() string {
	return "sqlite"
}

// Open accepts sqlite://<path>, sqlite:///<absolute path> and sqlite://:memory:.
// The pragmas selected by opts are appended as _pragma parameters, which the
// driver runs on every new connection.
func (d *SQLiteDriver) Open(uri string, opts Options) (gorm.Dialector, error) {
	_, dsn, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		dsn = MemoryDSN
	}
	return sqlite.Open(sqliteDSN(dsn, opts)), nil
}

// sqliteDSN appends the connection pragmas to dsn
func sqliteDSN(dsn string, opts Options) string {
	var pragmas []string
	if opts.ForeignKeys {
		pragmas = append(pragmas, "foreign_keys(1)")
	}
	if opts.FineTune && !memoryPath(dsn) {
		// 启用WAL模式（提升并发读性能）
		// WAL journal improves concurrent reads
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	if len(pragmas) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// Configure 应用SQLite连接池配置
// Configure applies SQLite pool settings. An in-memory database lives inside a
// single connection, so the pool is pinned to one connection that never expires.
func (d *SQLiteDriver) Configure(db *gorm.DB, opts Options) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	inMemory := isMemoryDSN(db.Dialector)
	if opts.FineTune || inMemory {
		// SQLite连接池配置（单连接，避免并发写冲突）
		// Single connection to avoid concurrent write conflicts
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	logger.Debug("SQLite config applied",
		zap.Bool("fine_tune", opts.FineTune),
		zap.Bool("foreign_keys", opts.ForeignKeys),
		zap.Bool("in_memory", inMemory),
	)
	return nil
}

func isMemoryDSN(d gorm.Dialector) bool {
	sd, ok := d.(*sqlite.Dialector)
	if !ok {
		return false
	}
	return memoryPath(sd.DSN)
}

func memoryPath(dsn string) bool {
	path, query, _ := strings.Cut(dsn, "?")
	return path == MemoryDSN || strings.Contains(query, "mode=memory")
}

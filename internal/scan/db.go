package scan

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reefscan/internal/logging"
)

// DBOptions selects and connects the scan database.
type DBOptions struct {
	Driver  string // "sqlite" or "postgres"
	DSN     string
	Timeout time.Duration // how long to keep retrying; 0 tries once
	Migrate bool
}

const retryInterval = 3 * time.Second

// Open connects to the database, retrying until opts.Timeout elapses.
// SQLite databases are always migrated since they are created on demand.
func Open(opts DBOptions, log *zap.SugaredLogger) (*gorm.DB, error) {
	log = logging.OrNop(log)

	var dial gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		dial = sqlite.Open(opts.DSN)
		opts.Migrate = true
	case "postgres":
		dial = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	deadline := time.Now().Add(opts.Timeout)
	for {
		db, err = gorm.Open(dial, cfg)
		if err == nil {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("failed to connect to %s database: %w", opts.Driver, err)
		}
		log.Warnw("database connect failed, retrying", "driver", opts.Driver, "error", err)
		time.Sleep(retryInterval)
	}

	if opts.Migrate {
		if err := NewStore(db).Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return db, nil
}

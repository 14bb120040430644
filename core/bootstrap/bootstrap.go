// Package bootstrap runs the startup pipeline shared by the service binary
// and integration tooling: logger, database connection, migrations.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/pr-poehali-dev/telegram-feedback-bot/core/config"
	coredatabase "github.com/pr-poehali-dev/telegram-feedback-bot/core/database"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the real
// implementations; tests substitute fakes.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(logger.Options) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, connects to the database, and applies
// migrations, in that order.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.Init
	}
	if err := loggerInit(logger.Options{
		Level:   opts.Config.Logging.Level,
		Format:  opts.Config.Logging.Format,
		Profile: opts.Config.Logging.Profile,
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Config.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db}, nil
}

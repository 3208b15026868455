package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	"github.com/angelmondragon/bv-engine/pkg/logger"
)

// DefaultDir is where new migration files are written.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the engine migrations compiled into the binary.
func Source() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Runner applies the engine schema to Postgres. Runs hold a session advisory
// lock, so API replicas auto-migrating on boot apply each version once.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

// NewRunner builds a runner over fsys, or over the embedded migrations when fsys is nil.
func NewRunner(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Source()
	}
	if logg == nil {
		logg = logger.Discard()
	}

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("create migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys,
		goose.WithSessionLocker(locker),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	r.report(ctx, result)
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// To moves the schema up or down until version is the latest applied one.
func (r *Runner) To(ctx context.Context, version int64) error {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch directionTo(current, version) {
	case directionUp:
		results, err = r.provider.UpTo(ctx, version)
	case directionDown:
		results, err = r.provider.DownTo(ctx, version)
	default:
		r.logg.Info(r.logg.WithField(ctx, "version", version), "schema already at requested version")
		return nil
	}
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return nil
}

// Status lists every known migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	status, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	return status, nil
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fields := map[string]any{
			"version":     res.Source.Version,
			"file":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Error != nil {
			r.logg.Error(r.logg.WithFields(ctx, fields), "migration failed", res.Error)
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration applied")
	}
}

// ParseVersion reads a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if !versionRe.MatchString(raw) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return strconv.ParseInt(raw, 10, 64)
}

type direction int

const (
	directionNone direction = iota
	directionUp
	directionDown
)

func directionTo(current, target int64) direction {
	switch {
	case current < target:
		return directionUp
	case current > target:
		return directionDown
	default:
		return directionNone
	}
}

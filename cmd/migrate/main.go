package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/angelmondragon/bv-engine/pkg/config"
	"github.com/angelmondragon/bv-engine/pkg/db"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	"github.com/angelmondragon/bv-engine/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|to|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the migrations built into the binary")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (to)")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	_ = godotenv.Load()

	// create and validate work on files only, so they skip config and the database.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateFS(source(opts.dir)); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"env": cfg.App.Env},
	})
	ctx = logg.WithField(ctx, "cmd", opts.cmd)

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	if client.IsSQLite() {
		logg.Info(ctx, "sqlite schema is applied on connect; nothing to migrate")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, source(opts.dir), logg)
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "to", "version":
		if opts.version == "" {
			return errors.New("-version is required")
		}
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		return runner.To(ctx, target)
	case "status":
		status, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, s := range status {
			applied := "-"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, filepath.Base(s.Source.Path))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown command %q", opts.cmd)
	}
}

// source picks the embedded migrations unless a directory is given.
func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Source()
	}
	return os.DirFS(dir)
}

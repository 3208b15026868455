package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var (
	versionRe  = regexp.MustCompile(`^\d{14}$`)
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)
)

const (
	annotationUp         = "-- +goose Up"
	annotationDown       = "-- +goose Down"
	annotationStmtBegin  = "-- +goose StatementBegin"
	annotationStmtFinish = "-- +goose StatementEnd"
)

// ValidateDir checks the migrations in dir; see ValidateFS.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys: the file name
// carries a unique 14 digit version and a snake_case slug, the Up section
// precedes the Down section, and statement blocks are balanced. All
// problems are reported together.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_snake_name.sql", name))
			continue
		}
		if prev, ok := versions[match[1]]; ok {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, match[1], prev))
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		problems = multierr.Append(problems, checkAnnotations(name, string(body)))
	}
	return problems
}

func checkAnnotations(name, body string) error {
	up := strings.Index(body, annotationUp)
	down := strings.Index(body, annotationDown)

	var problems error
	switch {
	case up < 0:
		problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, annotationUp))
	case down < 0:
		problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, annotationDown))
	case down < up:
		problems = multierr.Append(problems, fmt.Errorf("%s: down section precedes up section", name))
	}

	depth := 0
	for _, line := range strings.Split(body, "\n") {
		switch strings.TrimSpace(line) {
		case annotationStmtBegin:
			depth++
			if depth > 1 {
				problems = multierr.Append(problems, fmt.Errorf("%s: nested statement block", name))
			}
		case annotationStmtFinish:
			depth--
			if depth < 0 {
				problems = multierr.Append(problems, fmt.Errorf("%s: statement end without begin", name))
				depth = 0
			}
		}
	}
	if depth > 0 {
		problems = multierr.Append(problems, fmt.Errorf("%s: unterminated statement block", name))
	}
	return problems
}

package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var slugSeparatorRe = regexp.MustCompile(`[^a-z0-9]+`)

var now = time.Now

// CreateSQLMigration writes an empty goose migration named
// <version>_<slug>.sql into dir and returns its path. A slug already used by
// another migration is rejected so history stays searchable by name.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}
	existing, err := filepath.Glob(filepath.Join(dir, "*_"+slug+".sql"))
	if err != nil {
		return "", fmt.Errorf("scan migrations: %w", err)
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("migration %q already exists as %s", slug, filepath.Base(existing[0]))
	}

	target := filepath.Join(dir, now().UTC().Format("20060102150405")+"_"+slug+".sql")
	body := strings.Join([]string{
		annotationUp,
		annotationStmtBegin,
		"-- " + slug,
		annotationStmtFinish,
		"",
		annotationDown,
		annotationStmtBegin,
		"-- revert " + slug,
		annotationStmtFinish,
		"",
	}, "\n")

	// O_EXCL guards against two creates landing in the same second.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration file: %w", err)
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write migration file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close migration file: %w", err)
	}
	return target, nil
}

func slugify(name string) string {
	slug := slugSeparatorRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

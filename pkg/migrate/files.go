package migrate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nameCleanRe = regexp.MustCompile(`[^a-z0-9]+`)
)

var migrationTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
{{- if .Table}}
CREATE TABLE IF NOT EXISTS {{.Table}} (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
{{- else}}
-- {{.Name}}
{{- end}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
{{- if .Table}}
DROP TABLE IF EXISTS {{.Table}};
{{- else}}
-- rollback {{.Name}}
{{- end}}
-- +goose StatementEnd
`))

// File describes one migration file name.
type File struct {
	Version string
	Name    string
}

// Filename renders the on-disk name.
func (f File) Filename() string {
	return f.Version + "_" + f.Name + ".sql"
}

// ParseFilename splits YYYYMMDDHHMMSS_name.sql into its parts.
func ParseFilename(name string) (File, error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return File{}, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}
	if _, err := time.Parse(versionLayout, m[1]); err != nil {
		return File{}, fmt.Errorf("migration %q has an invalid timestamp: %w", name, err)
	}
	return File{Version: m[1], Name: m[2]}, nil
}

func cleanName(name string) string {
	safe := nameCleanRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(safe, "_")
}

// CreateSQLMigration writes a goose migration stamped with now. Names of the
// form "create_<table>" get a table skeleton with matching down statement.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := cleanName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q is empty once cleaned", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	file := File{Version: now.UTC().Format(versionLayout), Name: safe}
	full := filepath.Join(dir, file.Filename())
	if _, err := os.Stat(full); err == nil {
		return "", fmt.Errorf("migration already exists: %s", full)
	}

	var buf bytes.Buffer
	data := struct{ Name, Table string }{Name: safe, Table: strings.TrimPrefix(safe, "create_")}
	if data.Table == safe {
		data.Table = ""
	}
	if err := migrationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render migration: %w", err)
	}
	if err := os.WriteFile(full, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", full, err)
	}
	return full, nil
}

// ValidateDir checks the migrations in an on-disk directory.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	return ValidateFS(migrations, embeddedDir)
}

// ValidateFS checks names, version uniqueness and goose markers for every
// .sql file under root.
func ValidateFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations %q: %w", root, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		file, err := ParseFilename(e.Name())
		if err != nil {
			return err
		}
		if prev, ok := seen[file.Version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", file.Version, prev, e.Name())
		}
		seen[file.Version] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(root, e.Name()))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", e.Name(), err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !bytes.Contains(body, []byte(marker)) {
				return fmt.Errorf("migration %q missing %q", e.Name(), marker)
			}
		}
	}
	if len(seen) == 0 {
		return fmt.Errorf("no migrations found in %q", root)
	}
	return nil
}

// Package tenant resolves tenant identifiers to database connection
// descriptors. Each tenant is described by one YAML file in a conf.d style
// directory; files are re-read on every resolution so edits take effect
// without a restart.
package tenant

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/BruceJL/mysql-json-bridge/pkg/util/rand"
)

// ErrUnknownTenant is returned when no enabled tenant entry matches the
// requested identifier, or when a matching entry is missing required fields.
var ErrUnknownTenant = errors.New("unknown tenant")

// Descriptor holds the connection credentials for one configured tenant.
type Descriptor struct {
	Identifier string
	Host       string
	Database   string
	User       string
	Password   string
}

// Resolver looks up tenant descriptors from configuration files on disk.
type Resolver struct {
	dir    string
	logger *zap.Logger
}

func NewResolver(dir string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{dir: dir, logger: logger}
}

// requiredKeys must all be present in a tenant entry; an entry missing any of
// them is skipped rather than resolved with partial credentials.
var requiredKeys = []string{"scheme", "username", "password", "hostname", "database"}

// Resolve returns the descriptor for the given identifier. It reads every
// YAML file under the resolver's directory, keeps only enabled entries that
// carry all required fields, and returns the match. ErrUnknownTenant is
// returned when nothing matches.
func (r *Resolver) Resolve(identifier string) (Descriptor, error) {
	var files []string
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && (strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to scan tenant config directory", zap.String("dir", r.dir), zap.Error(err))
		return Descriptor{}, ErrUnknownTenant
	}

	for _, file := range files {
		desc, ok := r.readEntry(file)
		if !ok {
			continue
		}
		if desc.Identifier == identifier {
			return desc, nil
		}
	}

	r.logger.Warn("no enabled tenant entry matches identifier", zap.String("identifier", identifier))
	return Descriptor{}, ErrUnknownTenant
}

func (r *Resolver) readEntry(file string) (Descriptor, bool) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		r.logger.Warn("skipping unreadable tenant config", zap.String("file", file), zap.Error(err))
		return Descriptor{}, false
	}

	if v.GetString("identifier") == "" {
		return Descriptor{}, false
	}
	if !strings.EqualFold(v.GetString("enabled"), "true") {
		return Descriptor{}, false
	}
	for _, key := range requiredKeys {
		if !v.IsSet(key) || v.GetString(key) == "" {
			r.logger.Warn("tenant entry missing required field",
				zap.String("file", file), zap.String("field", key))
			return Descriptor{}, false
		}
	}

	return Descriptor{
		Identifier: v.GetString("identifier"),
		Host:       v.GetString("hostname"),
		Database:   v.GetString("database"),
		User:       v.GetString("username"),
		Password:   v.GetString("password"),
	}, true
}

// WriteExample writes a sample tenant file with a freshly generated
// password, used by `bridge init`.
func WriteExample(path string) error {
	example := fmt.Sprintf(`identifier: example
enabled: "True"
scheme: mysql
username: example_user
password: %s
hostname: localhost:3306
database: example
`, rand.NewPassword(24))
	return os.WriteFile(path, []byte(example), 0o600)
}

// Package config loads the two configuration layers s3fs needs: the
// mandatory credential file and an optional YAML mount-options file parsed
// with gopkg.in/yaml.v2.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Credentials holds the two lines of $HOME/.s3fs/.secret.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// CredentialPath returns the default credential file location.
func CredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".s3fs", ".secret"), nil
}

// LoadCredentials reads the two-line credential file. A missing or
// malformed file is a fatal startup error, never a soft default.
func LoadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("config: opening credential file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := make([]string, 0, 2)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Credentials{}, fmt.Errorf("config: reading credential file %s: %w", path, err)
	}
	if len(lines) != 2 || lines[0] == "" || lines[1] == "" {
		return Credentials{}, fmt.Errorf("config: credential file %s must contain exactly two non-empty lines", path)
	}
	return Credentials{AccessKeyID: lines[0], SecretAccessKey: lines[1]}, nil
}

// MountOptions carries the tunable FUSE mount options.
type MountOptions struct {
	DefaultPermissions bool   `yaml:"default_permissions"`
	FSName             string `yaml:"fsname"`
	VolName            string `yaml:"volname"`
	IOSize             uint32 `yaml:"iosize"`
}

// S3Tuning carries the client tuning knobs: region, endpoint, path-style
// addressing, and the retry budget.
type S3Tuning struct {
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"`
	ForcePathStyle bool          `yaml:"force_path_style"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// File is the optional YAML mount-options document.
type File struct {
	Mount MountOptions `yaml:"mount"`
	S3    S3Tuning     `yaml:"s3"`
}

// DefaultFile returns the compiled-in defaults.
func DefaultFile() *File {
	return &File{
		Mount: MountOptions{
			DefaultPermissions: true,
		},
		S3: S3Tuning{
			Region:         "us-east-1",
			MaxRetries:     2,
			RequestTimeout: 7 * time.Second,
		},
	}
}

// Load reads path if it exists, overlaying its values onto the defaults.
// Absence of the file is not an error, since the mount-options layer is
// entirely optional; a malformed file is.
func Load(path string) (*File, error) {
	f := DefaultFile()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// DefaultPath returns the default config file location within cacheDir,
// used when -config is not passed explicitly.
func DefaultPath(cacheDir string) string {
	return filepath.Join(cacheDir, "s3fs.yaml")
}

// Package s3 is the objectstore.Client implementation backed by the real
// AWS SDK.
package s3

import "time"

// Config configures the S3 client. Fields not set by the optional YAML
// mount-options file fall back to the defaults in NewDefaultConfig.
type Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	AccessKeyID    string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`

	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// EnableCargoShipOptimization routes PutFromFile through cargoship's
	// optimized transporter instead of a plain single-request PUT.
	EnableCargoShipOptimization bool `yaml:"enable_cargoship_optimization"`
}

// NewDefaultConfig returns the conservative defaults: 2 retries, 7s
// per-request timeout.
func NewDefaultConfig() *Config {
	return &Config{
		Region:                      "us-east-1",
		MaxRetries:                  2,
		RequestTimeout:              7 * time.Second,
		EnableCargoShipOptimization: true,
	}
}

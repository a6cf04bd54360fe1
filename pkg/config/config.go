package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/pdxmph/imgdedup/pkg/auth"
	"github.com/pdxmph/imgdedup/pkg/classify"
	"github.com/pdxmph/imgdedup/pkg/duplicate"
	"github.com/pdxmph/imgdedup/pkg/phash"
	"github.com/pdxmph/imgdedup/pkg/templates"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	Server    ServerConfig      `json:"server" toml:"server"`
	Storage   StorageConfig     `json:"storage" toml:"storage"`
	Dedup     DedupConfig       `json:"dedup" toml:"dedup"`
	Catalog   CatalogConfig     `json:"catalog" toml:"catalog"`
	Auth      AuthConfig        `json:"auth" toml:"auth"`
	Logging   LoggingConfig     `json:"logging" toml:"logging"`
	Templates map[string]string `json:"templates,omitempty" toml:"templates,omitempty"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr        string `json:"addr" toml:"addr"`
	MaxUploadMB int    `json:"max_upload_mb" toml:"max_upload_mb"`
}

// StorageConfig holds where accepted uploads are written
type StorageConfig struct {
	UploadDir string `json:"upload_dir" toml:"upload_dir"`
}

// DedupConfig holds the duplicate-detection engine settings
type DedupConfig struct {
	ImageExtensions    []string `json:"image_extensions" toml:"image_extensions"`
	DocumentExtensions []string `json:"document_extensions" toml:"document_extensions"`
	Threshold          *int     `json:"threshold,omitempty" toml:"threshold,omitempty"` // nil means DefaultThreshold
	Workers            int      `json:"workers" toml:"workers"`
	MaxPixels          int64    `json:"max_pixels" toml:"max_pixels"` // largest declared image size decoded
}

// CatalogConfig enables deduplication against earlier batches
type CatalogConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Path    string `json:"path,omitempty" toml:"path,omitempty"`
}

// AuthConfig holds bearer tokens accepted by the upload endpoint
type AuthConfig struct {
	Enabled bool                     `json:"enabled" toml:"enabled"`
	Tokens  map[string]auth.Identity `json:"tokens,omitempty" toml:"tokens,omitempty"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `json:"level" toml:"level"`
	File  string `json:"file,omitempty" toml:"file,omitempty"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// ThresholdValue returns the configured threshold or the default
func (d DedupConfig) ThresholdValue() int {
	if d.Threshold == nil {
		return duplicate.DefaultThreshold
	}
	return *d.Threshold
}

// CatalogPath returns the configured catalog path or the default
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return duplicate.DefaultCatalogPath()
}

// Classifier builds a classifier from the configured extension tables
func (c *Config) Classifier() *classify.Classifier {
	return classify.New(c.Dedup.ImageExtensions, c.Dedup.DocumentExtensions)
}

// Load loads configuration from IMGDEDUP_CONFIG or the default location
func Load() (*Config, error) {
	path := os.Getenv("IMGDEDUP_CONFIG")
	if path == "" {
		path = configPath()
	}
	return LoadFile(path)
}

// LoadFile loads a JSON or TOML (by extension) configuration file.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 64
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploaded_files"
	}
	if c.Dedup.ImageExtensions == nil {
		c.Dedup.ImageExtensions = append([]string(nil), classify.DefaultImageExtensions...)
	}
	if c.Dedup.DocumentExtensions == nil {
		c.Dedup.DocumentExtensions = append([]string(nil), classify.DefaultDocumentExtensions...)
	}
	if c.Dedup.Workers == 0 {
		c.Dedup.Workers = 1
	}
	if c.Dedup.MaxPixels == 0 {
		c.Dedup.MaxPixels = phash.DefaultMaxPixels
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	// Add any missing default templates
	if c.Templates == nil {
		c.Templates = make(map[string]string)
	}
	for k, v := range templates.DefaultTemplates() {
		if _, exists := c.Templates[k]; !exists {
			c.Templates[k] = v
		}
	}
}

// Validate reports every problem found, wrapped in ErrInvalid
func (c *Config) Validate() error {
	var problems []string
	if c.Dedup.ThresholdValue() < 0 {
		problems = append(problems, "threshold must be >= 0")
	}
	if c.Dedup.Workers < 0 {
		problems = append(problems, "workers must be >= 0")
	}
	if c.Dedup.MaxPixels < 0 {
		problems = append(problems, "max_pixels must be >= 0")
	}
	if c.Server.MaxUploadMB < 0 {
		problems = append(problems, "max_upload_mb must be >= 0")
	}
	if len(c.Dedup.ImageExtensions) == 0 && len(c.Dedup.DocumentExtensions) == 0 {
		problems = append(problems, "at least one image or document extension is required")
	}

	images := make(map[string]bool)
	for _, e := range c.Dedup.ImageExtensions {
		images[classify.NormalizeExt(e)] = true
	}
	for _, e := range c.Dedup.DocumentExtensions {
		if images[classify.NormalizeExt(e)] {
			problems = append(problems, fmt.Sprintf("extension %q is in both image and document tables", e))
		}
	}
	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		problems = append(problems, "auth is enabled but no tokens are configured")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ApplyEnv overrides settings from IMGDEDUP_* environment variables,
// e.g. IMGDEDUP_SERVER_ADDR or IMGDEDUP_DEDUP_THRESHOLD.
func (c *Config) ApplyEnv(v *viper.Viper) {
	v.SetEnvPrefix("IMGDEDUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.IsSet("server.addr") {
		c.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.max_upload_mb") {
		c.Server.MaxUploadMB = v.GetInt("server.max_upload_mb")
	}
	if v.IsSet("storage.upload_dir") {
		c.Storage.UploadDir = v.GetString("storage.upload_dir")
	}
	if v.IsSet("dedup.threshold") {
		n := v.GetInt("dedup.threshold")
		c.Dedup.Threshold = &n
	}
	if v.IsSet("dedup.workers") {
		c.Dedup.Workers = v.GetInt("dedup.workers")
	}
	if v.IsSet("dedup.max_pixels") {
		c.Dedup.MaxPixels = v.GetInt64("dedup.max_pixels")
	}
	if v.IsSet("catalog.enabled") {
		c.Catalog.Enabled = v.GetBool("catalog.enabled")
	}
	if v.IsSet("catalog.path") {
		c.Catalog.Path = v.GetString("catalog.path")
	}
	if v.IsSet("auth.enabled") {
		c.Auth.Enabled = v.GetBool("auth.enabled")
	}
	if v.IsSet("logging.level") {
		c.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("logging.file") {
		c.Logging.File = v.GetString("logging.file")
	}
}

// Set assigns a single value addressed by its dotted key
func (c *Config) Set(key, value string) error {
	switch {
	case key == "server.addr":
		c.Server.Addr = value
	case key == "server.max_upload_mb":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Server.MaxUploadMB = n
	case key == "storage.upload_dir":
		c.Storage.UploadDir = value
	case key == "dedup.image_extensions":
		c.Dedup.ImageExtensions = splitList(value)
	case key == "dedup.document_extensions":
		c.Dedup.DocumentExtensions = splitList(value)
	case key == "dedup.threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Dedup.Threshold = &n
	case key == "dedup.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Dedup.Workers = n
	case key == "dedup.max_pixels":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Dedup.MaxPixels = n
	case key == "catalog.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Catalog.Enabled = b
	case key == "catalog.path":
		c.Catalog.Path = value
	case key == "auth.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Auth.Enabled = b
	case strings.HasPrefix(key, "auth.token."):
		// auth.token.<token> = <uid>[,<email>]
		token := strings.TrimPrefix(key, "auth.token.")
		if c.Auth.Tokens == nil {
			c.Auth.Tokens = make(map[string]auth.Identity)
		}
		uid, email, _ := strings.Cut(value, ",")
		c.Auth.Tokens[token] = auth.Identity{UID: strings.TrimSpace(uid), Email: strings.TrimSpace(email)}
	case key == "logging.level":
		c.Logging.Level = value
	case key == "logging.file":
		c.Logging.File = value
	case strings.HasPrefix(key, "template."):
		name := strings.TrimPrefix(key, "template.")
		if c.Templates == nil {
			c.Templates = make(map[string]string)
		}
		c.Templates[name] = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save saves the configuration to the default location
func (c *Config) Save() error {
	path := os.Getenv("IMGDEDUP_CONFIG")
	if path == "" {
		path = configPath()
	}
	return c.SaveFile(path)
}

// SaveFile writes the configuration as JSON or TOML depending on the extension
func (c *Config) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Tokens live in here, keep it private
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// configPath returns the configuration file path
func configPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "imgdedup", "config.json")
}

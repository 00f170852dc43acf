package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"urlrev/misc"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	RevisionConfig struct {
		IncludeRemote bool   `yaml:"include_remote"`
		AbsolutePath  string `yaml:"absolute_path" validate:"omitempty,dir"`
		HashLength    int    `yaml:"hash_length" validate:"gte=0"`
		Algorithm     string `yaml:"algorithm" validate:"oneof=md5 sha1 sha256 sha512 blake2b"`
		QueryKey      string `yaml:"query_key" validate:"required"`
		Concurrency   int    `yaml:"concurrency" validate:"gte=0"`
		Template      string `yaml:"template,omitempty"`
	}

	RemoteConfig struct {
		Timeout   time.Duration           `yaml:"timeout" validate:"gte=0"`
		UserAgent string                  `yaml:"user_agent"`
		Headers   map[string]SecretString `yaml:"headers" validate:"dive,keys,required,endkeys"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Revision  RevisionConfig `yaml:"revision"`
		Remote    RemoteConfig   `yaml:"remote"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// Header returns request headers to be sent with every remote fetch.
func (conf *RemoteConfig) Header() http.Header {
	h := make(http.Header, len(conf.Headers)+1)
	for k, v := range conf.Headers {
		h.Set(k, string(v))
	}
	if len(conf.UserAgent) > 0 && len(h.Get("User-Agent")) == 0 {
		h.Set("User-Agent", conf.UserAgent)
	}
	return h
}

// Client returns http client for remote fetches.
func (conf *RemoteConfig) Client() *http.Client {
	return &http.Client{Timeout: conf.Timeout}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := cfg.Check(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Check sanitizes and validates configuration. It has to be called again
// after values were changed from command line.
func (cfg *Config) Check() error {
	if err := gencfg.Sanitize(cfg); err != nil {
		return err
	}
	if err := gencfg.Validate(cfg); err != nil {
		return err
	}
	return nil
}

// DefaultConfigFile returns per user configuration file location.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, misc.GetAppName(), misc.GetAppName()+".yaml")
}

// LocateConfiguration returns path when it is not empty, otherwise per user
// configuration file if it exists. Empty result means defaults.
func LocateConfiguration(path string) string {
	if len(path) > 0 {
		return path
	}
	if fi, err := os.Stat(DefaultConfigFile()); err == nil && fi.Mode().IsRegular() {
		return DefaultConfigFile()
	}
	return ""
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration tamplate to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

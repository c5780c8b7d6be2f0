// Package config loads the YAML configuration shared by the oscar-inspect
// commands.
//
// Example:
//
//	owner: "123456"
//	log:
//	  level: debug
//	codepages:
//	  legacy: windows-1251
//	rendezvous:
//	  policy: buddies-only
//	roster:
//	  path: /var/lib/oscar/roster.db
//	inspect:
//	  listen: ":8080"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ZentaChain/zentalk-oscar/pkg/im"
)

// Config is the top-level configuration.
type Config struct {
	// Owner is the local account. Offline retrieval needs a numeric UIN.
	Owner string `yaml:"owner"`

	Log        LogConfig        `yaml:"log"`
	Codepages  CodepagesConfig  `yaml:"codepages"`
	Rendezvous RendezvousConfig `yaml:"rendezvous"`
	Roster     RosterConfig     `yaml:"roster"`
	Inspect    InspectConfig    `yaml:"inspect"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// CodepagesConfig names the single-byte charsets, as WHATWG labels.
type CodepagesConfig struct {
	// Plain applies to channel 1 text that is not UTF-16.
	// Default: iso-8859-1
	Plain string `yaml:"plain"`
	// Legacy applies to channel 4 text.
	// Default: windows-1252
	Legacy string `yaml:"legacy"`
}

// RendezvousConfig configures rendezvous gating.
type RendezvousConfig struct {
	// Policy is allow-all or buddies-only.
	Policy string `yaml:"policy"`
}

// RosterConfig locates the contact cache.
type RosterConfig struct {
	// Path is the sqlite database file. Empty disables sender gating.
	Path string `yaml:"path"`
}

// InspectConfig configures the HTTP inspection API.
type InspectConfig struct {
	Listen     string `yaml:"listen"`
	EnableCORS bool   `yaml:"cors"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Codepages: CodepagesConfig{
			Plain:  "iso-8859-1",
			Legacy: "windows-1252",
		},
		Rendezvous: RendezvousConfig{
			Policy: im.PolicyAllowAll.String(),
		},
		Inspect: InspectConfig{
			Listen:     ":8080",
			EnableCORS: true,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document keeps the defaults
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that has a closed set of values.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := im.LookupCodepages(c.Codepages.Plain, c.Codepages.Legacy); err != nil {
		errs = append(errs, fmt.Errorf("codepages: %w", err))
	}
	if _, err := im.ParseRendezvousPolicy(c.Rendezvous.Policy); err != nil {
		errs = append(errs, fmt.Errorf("rendezvous.policy: %w", err))
	}
	if strings.TrimSpace(c.Owner) != c.Owner {
		errs = append(errs, fmt.Errorf("owner: %q has surrounding spaces", c.Owner))
	}

	return errors.Join(errs...)
}

// CodepageSet resolves the configured charsets.
func (c *Config) CodepageSet() (im.Codepages, error) {
	return im.LookupCodepages(c.Codepages.Plain, c.Codepages.Legacy)
}

// Policy resolves the configured rendezvous policy.
func (c *Config) Policy() (im.RendezvousPolicy, error) {
	return im.ParseRendezvousPolicy(c.Rendezvous.Policy)
}

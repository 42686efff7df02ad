// Package branding provides the identity values the fork stamps over the
// upstream extension.
//
// Forkers edit branding.yaml in this package and rebuild; Go's //go:embed
// bakes it into the binary. A brand file passed at runtime (--brand) is
// overlaid on the embedded values.
package branding

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults Brand
)

// Brand holds the fork's identity.
type Brand struct {
	CLIName             string    `yaml:"cli_name"`
	EnvPrefix           string    `yaml:"env_prefix"`
	HomeDir             string    `yaml:"home_dir"`
	DisplayName         string    `yaml:"display_name"`
	UpstreamDisplayName string    `yaml:"upstream_display_name"`
	Description         string    `yaml:"description"`
	Icon                string    `yaml:"icon"`
	Persona             Persona   `yaml:"persona"`
	Namespace           Namespace `yaml:"namespace"`
	Welcome             string    `yaml:"welcome"`
}

// Persona is the agent identity shown in chat.
type Persona struct {
	Name   string `yaml:"name"`
	Handle string `yaml:"handle"`
}

func hardDefaults() Brand {
	return Brand{
		CLIName:             "forksync",
		EnvPrefix:           "FORKSYNC",
		HomeDir:             ".forksync",
		DisplayName:         "Nimbus Chat",
		UpstreamDisplayName: "GitHub Copilot Chat",
		Description:         "Nimbus Chat is an AI pair programmer that lives in your editor.",
		Icon:                "assets/nimbus.png",
		Persona:             Persona{Name: "Nimbus", Handle: "nimbus"},
		Namespace:           Namespace{Upstream: "github.copilot", Fork: "nimbus.chat"},
		Welcome:             "Hi {{if .User}}@{{.User}}{{else}}there{{end}}, I'm {{.Persona}}.",
	}
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is missing or empty.
		defaults = hardDefaults()
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// Default returns a copy of the embedded brand.
func Default() Brand {
	load()
	return defaults
}

// Parse overlays YAML brand values on top of the embedded brand.
func Parse(data []byte) (Brand, error) {
	b := Default()
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Brand{}, fmt.Errorf("parsing brand: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Brand{}, err
	}
	return b, nil
}

// LoadFile reads a brand override file. An empty path returns the default.
func LoadFile(path string) (Brand, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Brand{}, fmt.Errorf("reading brand file %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks the fields the overlay depends on.
func (b Brand) Validate() error {
	if strings.TrimSpace(b.DisplayName) == "" {
		return fmt.Errorf("brand: display_name is required")
	}
	if b.DisplayName == b.UpstreamDisplayName {
		return fmt.Errorf("brand: display_name must differ from upstream_display_name")
	}
	if err := b.Namespace.Validate(); err != nil {
		return fmt.Errorf("brand: %w", err)
	}
	return nil
}

// Marker is the prefix a manifest's displayName carries once branded.
func (b Brand) Marker() string { return b.DisplayName }

// HasMarker reports whether displayName is already branded.
func (b Brand) HasMarker(displayName string) bool {
	return b.Marker() != "" && strings.HasPrefix(displayName, b.Marker())
}

// CLIName returns the root command name (e.g., "forksync").
func CLIName() string { load(); return defaults.CLIName }

// EnvPrefix returns the environment variable prefix (e.g., "FORKSYNC").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// HomeDir returns the dot-directory name under $HOME (e.g., ".forksync").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("auto_rebase") → "FORKSYNC_AUTO_REBASE".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}

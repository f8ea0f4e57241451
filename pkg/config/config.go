// Package config implements the bootstrap YAML configuration layer:
// parse a file straight into in-memory descriptors, apply defaults,
// validate, hand the result to the Service Repository. A persisted,
// multi-writer catalog is out of scope; this package only covers the
// static bootstrap file a supervisor process starts from.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/errors"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
)

// Config is the top-level bootstrap file structure.
type Config struct {
	Listen   ListenConfig    `yaml:"listen"`
	Services []ServiceConfig `yaml:"services"`
}

// ListenConfig names the sockets the event loop's ambient surfaces
// bind: the notify-protocol datagram socket, the admin control socket,
// and the read-only admin/introspection HTTP surface.
type ListenConfig struct {
	NotifySocketPath string `yaml:"notify_socket,omitempty"`
	AdminAddr        string `yaml:"admin_addr,omitempty"`
	ControlSocket    string `yaml:"control_socket,omitempty"`
}

// ServiceConfig is one [service] entry: its instances (if any), its
// dependency groups, and the method command lines the Restarter Core
// forks for each of its instances.
type ServiceConfig struct {
	Name      string             `yaml:"name"`
	Enabled   *bool              `yaml:"enabled,omitempty"`
	Instances []InstanceConfig   `yaml:"instances,omitempty"`
	Groups    []GroupConfig      `yaml:"groups,omitempty"`
	UnitType  string             `yaml:"unit_type,omitempty"`
	Methods   MethodsConfig      `yaml:"methods,omitempty"`
}

// InstanceConfig overrides a service's defaults for one named instance;
// any zero field falls back to the owning service's own value.
type InstanceConfig struct {
	Name     string        `yaml:"name"`
	Enabled  *bool         `yaml:"enabled,omitempty"`
	Groups   []GroupConfig `yaml:"groups,omitempty"`
	UnitType string        `yaml:"unit_type,omitempty"`
	Methods  MethodsConfig `yaml:"methods,omitempty"`
}

// GroupConfig is one dependency-group entry.
type GroupConfig struct {
	Kind      string   `yaml:"kind"`
	RestartOn string   `yaml:"restart_on,omitempty"`
	Targets   []string `yaml:"targets"`
}

// MethodsConfig is the method table a unit forks from, one command line
// per method kind.
type MethodsConfig struct {
	PreStart  *MethodConfig `yaml:"pre_start,omitempty"`
	Start     *MethodConfig `yaml:"start,omitempty"`
	PostStart *MethodConfig `yaml:"post_start,omitempty"`
	Stop      *MethodConfig `yaml:"stop,omitempty"`
	PostStop  *MethodConfig `yaml:"post_stop,omitempty"`
}

// MethodConfig is one command line: executable path, arguments, and
// extra environment variables (NOTIFY_SOCKET is appended by the
// Restarter Core itself, not configured here). For a "forks" unit_type,
// Start.Path is not a command at all -- it is the pid file the already-
// self-forking daemon writes, and Args/Env are ignored for that method.
type MethodConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args,omitempty"`
	Env  []string `yaml:"env,omitempty"`
}

const (
	defaultNotifySocketPath = "/var/run/s16_sd_notify.sock"
	defaultAdminAddr        = "127.0.0.1:8765"
	defaultControlSocket    = "/var/run/s16_control.sock"
	defaultMethodTimeout    = 2000 * time.Millisecond
)

// Load reads and parses filename, applying defaults and validating the
// result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.NotifySocketPath == "" {
		cfg.Listen.NotifySocketPath = defaultNotifySocketPath
	}
	if cfg.Listen.AdminAddr == "" {
		cfg.Listen.AdminAddr = defaultAdminAddr
	}
	if cfg.Listen.ControlSocket == "" {
		cfg.Listen.ControlSocket = defaultControlSocket
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.Enabled == nil {
			enabled := true
			svc.Enabled = &enabled
		}
		if svc.UnitType == "" {
			svc.UnitType = string(restarter.TypeSimple)
		}
		for j := range svc.Instances {
			inst := &svc.Instances[j]
			if inst.Enabled == nil {
				inst.Enabled = svc.Enabled
			}
			if inst.UnitType == "" {
				inst.UnitType = svc.UnitType
			}
		}
	}
}

// Validate checks structural well-formedness: known unit types, known
// group kinds, known restart-severity names, and no duplicate service
// names. Dependency-target existence is not checked here -- the Graph
// Engine's own VertexSetup is the authority on whether a target
// resolves.
func Validate(cfg *Config) error {
	seen := make(map[string]bool)
	for i, svc := range cfg.Services {
		if svc.Name == "" {
			return errors.NewValidationError(fmt.Sprintf("service at index %d has no name", i), nil)
		}
		if seen[svc.Name] {
			return errors.NewValidationError(fmt.Sprintf("duplicate service name: %s", svc.Name), nil)
		}
		seen[svc.Name] = true

		if err := validateUnitType(svc.UnitType); err != nil {
			return errors.NewValidationError("invalid service unit_type", err).WithContext("service", svc.Name)
		}
		if err := validateGroups(svc.Groups); err != nil {
			return errors.NewValidationError("invalid service dependency groups", err).WithContext("service", svc.Name)
		}
		for _, inst := range svc.Instances {
			if inst.Name == "" {
				return errors.NewValidationError("instance has no name", nil).WithContext("service", svc.Name)
			}
			if err := validateUnitType(inst.UnitType); err != nil {
				return errors.NewValidationError("invalid instance unit_type", err).WithContext("service", svc.Name).WithContext("instance", inst.Name)
			}
			if err := validateGroups(inst.Groups); err != nil {
				return errors.NewValidationError("invalid instance dependency groups", err).WithContext("service", svc.Name).WithContext("instance", inst.Name)
			}
		}
	}
	return nil
}

func validateUnitType(t string) error {
	switch restarter.UnitType(t) {
	case restarter.TypeSimple, restarter.TypeOneshot, restarter.TypeForks, restarter.TypeGroup:
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported unit type: %s", t), nil).
			WithContext("supported_types", "simple, oneshot, forks, group")
	}
}

func validateGroups(groups []GroupConfig) error {
	for _, g := range groups {
		if _, err := parseGroupKind(g.Kind); err != nil {
			return err
		}
		if _, err := parseSeverity(g.RestartOn); err != nil {
			return err
		}
		if len(g.Targets) == 0 {
			return errors.NewValidationError("dependency group has no targets", nil).WithContext("kind", g.Kind)
		}
	}
	return nil
}

func parseGroupKind(kind string) (domain.GroupKind, error) {
	switch domain.GroupKind(kind) {
	case domain.GroupRequireAll, domain.GroupRequireAny, domain.GroupOptionalAll, domain.GroupExcludeAll:
		return domain.GroupKind(kind), nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unsupported dependency group kind: %s", kind), nil).
			WithContext("supported_kinds", "require_all, require_any, optional_all, exclude_all")
	}
}

func parseSeverity(s string) (domain.RestartSeverity, error) {
	switch s {
	case "", "none":
		return domain.SeverityNone, nil
	case "error":
		return domain.SeverityError, nil
	case "restart":
		return domain.SeverityRestart, nil
	case "refresh":
		return domain.SeverityRefresh, nil
	case "any":
		return domain.SeverityAny, nil
	default:
		return 0, errors.NewValidationError(fmt.Sprintf("unsupported restart_on severity: %s", s), nil).
			WithContext("supported_severities", "none, error, restart, refresh, any")
	}
}

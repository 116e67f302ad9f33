// Package config loads the façade's runtime configuration (§3
// "Runtime config", §6 "Config snapshot structure").
//
// Loaded with gopkg.in/ini.v1, following a "one well-known section plus
// a family of prefixed per-item sections" shape ([supplier.<id>] here),
// with an environment-variable override for the listen address.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// Mode is the execution mode of a supplier descriptor (§3).
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Credential is one username/password pair a supplier may need to reach
// its own backing system (e.g. SSH targets). It is never logged.
type Credential struct {
	User     string
	Password string
}

// SupplierDescriptor is the static configuration record for one
// supplier (§3 "Supplier descriptor").
type SupplierDescriptor struct {
	ID          string
	Type        string
	Mode        Mode
	Targets     []string
	ATCFilePath string
	Credentials []Credential
}

// Config is the runtime config owned exclusively by the state manager
// (§3 "Runtime config", §6 "Config snapshot structure").
type Config struct {
	Addr        string
	Metrics     string
	Health      string
	AdminDBPath string
	Username    string
	Password    string
	Suppliers   map[string]SupplierDescriptor
}

// Clone returns a deep copy suitable for handing to a reader outside
// the state manager goroutine (§4.D ReadConfig).
func (c *Config) Clone() *Config {
	cp := *c
	cp.Suppliers = make(map[string]SupplierDescriptor, len(c.Suppliers))
	for id, d := range c.Suppliers {
		d2 := d
		d2.Targets = append([]string(nil), d.Targets...)
		d2.Credentials = append([]Credential(nil), d.Credentials...)
		cp.Suppliers[id] = d2
	}
	return &cp
}

// Load reads configuration from an INI file. Environment variables
// override the listen address, the same env-override precedent as
// TQDBPROXY_POSTGRES_LISTEN.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	core := f.Section("core")
	cfg := &Config{
		Addr:        core.Key("listen").MustString(":5432"),
		Metrics:     core.Key("metrics").String(),
		Health:      core.Key("health").String(),
		AdminDBPath: core.Key("admin_db_path").MustString("./udi-pgp-state.db"),
		Username:    core.Key("username").MustString("udipgp"),
		Password:    core.Key("password").String(),
		Suppliers:   make(map[string]SupplierDescriptor),
	}

	if v := os.Getenv("UDI_PGP_LISTEN"); v != "" {
		cfg.Addr = v
	}

	const prefix = "supplier."
	for _, sec := range f.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		id := strings.TrimPrefix(name, prefix)
		if id == "" {
			continue
		}

		var targets []string
		if sec.HasKey("targets") {
			for _, t := range strings.Split(sec.Key("targets").String(), ",") {
				if t = strings.TrimSpace(t); t != "" {
					targets = append(targets, t)
				}
			}
		}

		var creds []Credential
		if sec.HasKey("auth_user") {
			creds = append(creds, Credential{
				User:     sec.Key("auth_user").String(),
				Password: sec.Key("auth_pass").String(),
			})
		}

		cfg.Suppliers[id] = SupplierDescriptor{
			ID:          id,
			Type:        sec.Key("type").MustString("exec"),
			Mode:        Mode(sec.Key("mode").MustString(string(ModeLocal))),
			Targets:     targets,
			ATCFilePath: sec.Key("atc_file_path").String(),
			Credentials: creds,
		}
	}

	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", cfg.Addr, err)
	}

	return cfg, nil
}

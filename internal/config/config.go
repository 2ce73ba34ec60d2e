// Package config loads qcored's process configuration, grounded on the
// teacher pack's only viper user, jbrzusto-ogdar's config.go
// (viper.SetConfigName/AddConfigPath/ReadInConfig, falling back to a
// setDefaultConfig when no file is found).
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/qlab-core/qcore/internal/constants"
)

// Config is qcored's process configuration (spec.md §5, §6): which
// address the Task Server RPC listener binds, the default physical
// backend new tasks admit onto when TaskSpec.Backend is empty, and the
// Calibration DAG Scheduler's group layout.
type Config struct {
	ListenAddr     string
	DefaultBackend string
	LogLevel       string

	CheckMethod string
	CheckPeriod time.Duration
	Groups      map[string][]string
	GroupOrder  []string

	// CalibEdges lists the calibration DAG's edges as [parent, child]
	// pairs (spec.md §4.8): a Calibrator retrying child walks back to
	// parent. Empty means no calibration retry graph beyond CheckMethod
	// itself.
	CalibEdges [][2]string
}

// Default returns qcored's built-in configuration, used when no config
// file is found (jbrzusto-ogdar's setDefaultConfig pattern: "there is
// no guarantee these values make sense for a particular setup, but they
// let the daemon start").
func Default() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:7777",
		DefaultBackend: "loopback",
		LogLevel:       "info",
		CheckMethod:    "",
		CheckPeriod:    constants.DefaultCheckPeriod,
		Groups:         map[string][]string{},
		GroupOrder:     nil,
	}
}

// Load reads qcored's configuration from name ("qcored" by default,
// without extension) in the given search paths, falling back to
// Default() if no config file is found in any of them.
func Load(name string, searchPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	cfg := Default()
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("default_backend", cfg.DefaultBackend)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("check_method", cfg.CheckMethod)
	v.SetDefault("check_period", cfg.CheckPeriod.String())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, err
	}

	cfg.ListenAddr = v.GetString("listen_addr")
	cfg.DefaultBackend = v.GetString("default_backend")
	cfg.LogLevel = v.GetString("log_level")
	cfg.CheckMethod = v.GetString("check_method")
	if d := v.GetDuration("check_period"); d > 0 {
		cfg.CheckPeriod = d
	}

	var groupOrder []string
	if err := v.UnmarshalKey("group_order", &groupOrder); err == nil && len(groupOrder) > 0 {
		cfg.GroupOrder = groupOrder
	}
	groups := map[string][]string{}
	if err := v.UnmarshalKey("groups", &groups); err == nil && len(groups) > 0 {
		cfg.Groups = groups
		if cfg.GroupOrder == nil {
			for gid := range groups {
				cfg.GroupOrder = append(cfg.GroupOrder, gid)
			}
		}
	}

	var edges [][]string
	if err := v.UnmarshalKey("calib_edges", &edges); err == nil {
		for _, pair := range edges {
			if len(pair) == 2 {
				cfg.CalibEdges = append(cfg.CalibEdges, [2]string{pair[0], pair[1]})
			}
		}
	}

	return cfg, nil
}

// Package config loads and validates a simulation run's configuration,
// the §6 surface that drives a workgroup.Manager: base granularity,
// run length, per-group worker counts, and the framework enums
// (spatial index implementation, mutex strategy, agent load order).
//
// Values are read from a TOML file with pelletier/go-toml and layered
// with spf13/viper over built-in defaults. Environment variables override
// the defaults; values from the file override both. No command-line
// flags are bound.
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml"
	"github.com/spf13/viper"

	"github.com/simmobility/kernel/aura"
	"github.com/simmobility/kernel/buffer"
	"github.com/simmobility/kernel/clock"
)

// LoadPhase names one of the agent-creation sources consulted during
// phase 0, before ticking begins.
type LoadPhase string

const (
	PhaseDatabase    LoadPhase = "database"
	PhaseDrivers     LoadPhase = "drivers"
	PhasePedestrians LoadPhase = "pedestrians"
	PhasePassengers  LoadPhase = "passengers"
)

// GroupConfig is one entry of the per-group {numWorkers, granularityMs}
// table required by §6.
type GroupConfig struct {
	Name          string `toml:"name" mapstructure:"name"`
	NumWorkers    int    `toml:"numWorkers" mapstructure:"numWorkers"`
	GranularityMs int64  `toml:"granularityMs" mapstructure:"granularityMs"`
}

// Config is the fully-parsed, still-unvalidated contents of a run's
// config file.
type Config struct {
	BaseGranularityMs int64         `toml:"baseGranularityMs" mapstructure:"baseGranularityMs"`
	TotalRuntimeMs    int64         `toml:"totalRuntimeMs" mapstructure:"totalRuntimeMs"`
	TotalWarmupMs     int64         `toml:"totalWarmupMs" mapstructure:"totalWarmupMs"`
	Groups            []GroupConfig `toml:"groups" mapstructure:"groups"`

	AuraManagerImplementation string `toml:"auraManagerImplementation" mapstructure:"auraManagerImplementation"`
	MutexStrategy             string `toml:"mutexStrategy" mapstructure:"mutexStrategy"`
	LoadAgentOrder            []string `toml:"loadAgentOrder" mapstructure:"loadAgentOrder"`

	AutoIDStart             int64 `toml:"autoIdStart" mapstructure:"autoIdStart"`
	DynamicDispatchDisabled bool  `toml:"dynamicDispatchDisabled" mapstructure:"dynamicDispatchDisabled"`
	InteractiveMode         bool  `toml:"interactiveMode" mapstructure:"interactiveMode"`
	StrictAgentErrors       bool  `toml:"strictAgentErrors" mapstructure:"strictAgentErrors"`

	OutputPath string `toml:"outputPath" mapstructure:"outputPath"`
}

// Resolved is the validated, unit-converted form of Config that the
// rest of the kernel actually consumes: milliseconds have become
// ticks, strings have become enums, and every invariant §6 requires has
// already been checked once.
type Resolved struct {
	Granularity clock.Granularity
	TotalTicks  clock.Tick
	WarmupTicks clock.Tick
	Groups      []ResolvedGroup

	AuraKind       aura.Kind
	MutexStrategy  buffer.Strategy
	LoadAgentOrder []LoadPhase

	AutoIDStart             int64
	DynamicDispatchDisabled bool
	InteractiveMode         bool
	StrictAgentErrors       bool

	OutputPath string

	// Warnings accumulates the non-fatal truncation notices §6 calls
	// for ("otherwise truncated with a warning") instead of silently
	// swallowing them.
	Warnings []string
}

// ResolvedGroup is one GroupConfig after its granularity has been
// converted to a clock.TickStep relative to the run's base granularity.
type ResolvedGroup struct {
	Name       string
	NumWorkers int
	TickStep   clock.TickStep
}

// Default returns the built-in defaults every field falls back to when
// absent from the file, env, or flags, so a run never requires an
// exhaustive config file.
func Default() Config {
	return Config{
		BaseGranularityMs:         100,
		TotalRuntimeMs:            0,
		TotalWarmupMs:             0,
		Groups: []GroupConfig{
			{Name: "person", NumWorkers: 1, GranularityMs: 100},
			{Name: "signal", NumWorkers: 1, GranularityMs: 100},
		},
		AuraManagerImplementation: "rstar",
		MutexStrategy:             "buffered",
		LoadAgentOrder:            []string{"database", "drivers", "pedestrians", "passengers"},
		AutoIDStart:               1,
		OutputPath:                "out.db",
	}
}

// Load merges built-in defaults, viper environment-variable overrides
// (prefix SIMMOBILITY_) and the TOML config file at path, if any, with
// the file taking precedence over the environment, and returns the
// merged, still-unvalidated Config. A missing file is not an error:
// defaults plus any env overrides are used instead.
func Load(path string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetEnvPrefix("simmobility")
	v.AutomaticEnv()
	setViperDefaults(v, def)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else {
			var fileCfg Config
			if err := toml.Unmarshal(data, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
			applyFileOverrides(v, fileCfg)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshalling merged config: %w", err)
	}
	if len(cfg.Groups) == 0 {
		cfg.Groups = def.Groups
	}
	if len(cfg.LoadAgentOrder) == 0 {
		cfg.LoadAgentOrder = def.LoadAgentOrder
	}
	return cfg, nil
}

func setViperDefaults(v *viper.Viper, def Config) {
	v.SetDefault("baseGranularityMs", def.BaseGranularityMs)
	v.SetDefault("totalRuntimeMs", def.TotalRuntimeMs)
	v.SetDefault("totalWarmupMs", def.TotalWarmupMs)
	v.SetDefault("auraManagerImplementation", def.AuraManagerImplementation)
	v.SetDefault("mutexStrategy", def.MutexStrategy)
	v.SetDefault("autoIdStart", def.AutoIDStart)
	v.SetDefault("dynamicDispatchDisabled", def.DynamicDispatchDisabled)
	v.SetDefault("interactiveMode", def.InteractiveMode)
	v.SetDefault("strictAgentErrors", def.StrictAgentErrors)
	v.SetDefault("outputPath", def.OutputPath)
}

// applyFileOverrides pushes every field present in the parsed TOML file
// into viper with Set, which in viper's precedence order outranks both
// defaults and environment variables. A zero or empty value counts as
// absent, except for the three boolean fields, which are always pushed.
func applyFileOverrides(v *viper.Viper, fileCfg Config) {
	if fileCfg.BaseGranularityMs != 0 {
		v.Set("baseGranularityMs", fileCfg.BaseGranularityMs)
	}
	if fileCfg.TotalRuntimeMs != 0 {
		v.Set("totalRuntimeMs", fileCfg.TotalRuntimeMs)
	}
	if fileCfg.TotalWarmupMs != 0 {
		v.Set("totalWarmupMs", fileCfg.TotalWarmupMs)
	}
	if len(fileCfg.Groups) > 0 {
		v.Set("groups", fileCfg.Groups)
	}
	if fileCfg.AuraManagerImplementation != "" {
		v.Set("auraManagerImplementation", fileCfg.AuraManagerImplementation)
	}
	if fileCfg.MutexStrategy != "" {
		v.Set("mutexStrategy", fileCfg.MutexStrategy)
	}
	if len(fileCfg.LoadAgentOrder) > 0 {
		v.Set("loadAgentOrder", fileCfg.LoadAgentOrder)
	}
	if fileCfg.AutoIDStart != 0 {
		v.Set("autoIdStart", fileCfg.AutoIDStart)
	}
	v.Set("dynamicDispatchDisabled", fileCfg.DynamicDispatchDisabled)
	v.Set("interactiveMode", fileCfg.InteractiveMode)
	v.Set("strictAgentErrors", fileCfg.StrictAgentErrors)
	if fileCfg.OutputPath != "" {
		v.Set("outputPath", fileCfg.OutputPath)
	}
}

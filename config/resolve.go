package config

import (
	"fmt"

	"github.com/simmobility/kernel/aura"
	"github.com/simmobility/kernel/buffer"
	"github.com/simmobility/kernel/clock"
)

var requiredGroups = []string{"person", "signal"}

// Resolve validates cfg against §6's invariants and converts it into the
// form the rest of the kernel consumes. It never panics: every
// violation that spec.md marks fatal becomes an error, and every
// violation marked "truncated with a warning" is applied and recorded
// in Resolved.Warnings instead of rejected outright.
func Resolve(cfg Config) (Resolved, error) {
	gran, err := clock.NewGranularity(cfg.BaseGranularityMs)
	if err != nil {
		return Resolved{}, err
	}

	out := Resolved{
		Granularity:             gran,
		AutoIDStart:             cfg.AutoIDStart,
		DynamicDispatchDisabled: cfg.DynamicDispatchDisabled,
		InteractiveMode:         cfg.InteractiveMode,
		StrictAgentErrors:       cfg.StrictAgentErrors,
		OutputPath:              cfg.OutputPath,
	}

	out.TotalTicks = truncateToTicks(gran, cfg.TotalRuntimeMs, "totalRuntimeMs", &out.Warnings)
	out.WarmupTicks = truncateToTicks(gran, cfg.TotalWarmupMs, "totalWarmupMs", &out.Warnings)
	if out.WarmupTicks > out.TotalTicks {
		return Resolved{}, fmt.Errorf("config: totalWarmupMs exceeds totalRuntimeMs")
	}

	seen := make(map[string]bool, len(cfg.Groups))
	for _, g := range cfg.Groups {
		if g.NumWorkers <= 0 {
			return Resolved{}, fmt.Errorf("config: group %q must have at least one worker", g.Name)
		}
		ticks := truncateToTicks(gran, g.GranularityMs, fmt.Sprintf("groups[%s].granularityMs", g.Name), &out.Warnings)
		step := clock.TickStep(ticks)
		if step < 1 {
			step = 1
		}
		if out.TotalTicks > 0 {
			if err := step.Validate(out.TotalTicks); err != nil {
				return Resolved{}, fmt.Errorf("config: group %q: %w", g.Name, err)
			}
		}
		out.Groups = append(out.Groups, ResolvedGroup{Name: g.Name, NumWorkers: g.NumWorkers, TickStep: step})
		seen[g.Name] = true
	}
	for _, want := range requiredGroups {
		if !seen[want] {
			return Resolved{}, fmt.Errorf("config: missing required group %q", want)
		}
	}

	kind, ok := aura.ParseKind(cfg.AuraManagerImplementation)
	if !ok {
		return Resolved{}, fmt.Errorf("config: unknown auraManagerImplementation %q", cfg.AuraManagerImplementation)
	}
	out.AuraKind = kind

	switch cfg.MutexStrategy {
	case "", "buffered":
		out.MutexStrategy = buffer.Buffered
	case "locked":
		out.MutexStrategy = buffer.Locked
	default:
		return Resolved{}, fmt.Errorf("config: unknown mutexStrategy %q", cfg.MutexStrategy)
	}

	for _, p := range cfg.LoadAgentOrder {
		phase := LoadPhase(p)
		switch phase {
		case PhaseDatabase, PhaseDrivers, PhasePedestrians, PhasePassengers:
			out.LoadAgentOrder = append(out.LoadAgentOrder, phase)
		default:
			return Resolved{}, fmt.Errorf("config: unknown loadAgentOrder entry %q", p)
		}
	}

	return out, nil
}

// truncateToTicks converts ms to ticks under gran, recording a warning
// (rather than failing) when ms is not an exact multiple of the base
// granularity, per §6.
func truncateToTicks(gran clock.Granularity, ms int64, field string, warnings *[]string) clock.Tick {
	ticks, ok := gran.Ticks(ms)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("%s=%dms is not a multiple of baseGranularityMs=%dms; truncated to %d ticks", field, ms, gran.BaseMs, ticks))
	}
	return ticks
}

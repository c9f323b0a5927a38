// Package routing selects and executes routing strategies for inbound
// calls and records every attempt in the audit trail.
package routing

import (
	"github.com/dialcraft/router/internal/types"
)

// Selection is the strategy chosen for one call plus the rule that chose it
type Selection struct {
	Strategy types.Strategy
	Reason   string
}

// Select picks exactly one strategy using a fixed precedence:
//
//  1. holiday or outside business hours -> configured after-hours strategy
//  2. zero available agents             -> configured no-agents strategy
//  3. premium / high-priority caller    -> skills-based
//  4. geo routing enabled with location -> geographic
//  5. default                           -> round-robin
//
// Availability and hours trump caller-quality signals; the order is a
// policy choice and observable behavior depends on it.
func Select(cfg *types.RoutingConfiguration, open bool, availableAgents int, caller *types.CallerProfile) Selection {
	if !open {
		return Selection{
			Strategy: fallbackStrategy(cfg.AfterHoursStrategy, types.StrategyVoicemail),
			Reason:   "outside business hours",
		}
	}

	if availableAgents == 0 {
		return Selection{
			Strategy: fallbackStrategy(cfg.NoAgentsStrategy, types.StrategyQueue),
			Reason:   "no available agents",
		}
	}

	if caller.HighPriority() {
		return Selection{Strategy: types.StrategySkillsBased, Reason: "high-priority caller"}
	}

	if cfg.GeoRoutingEnabled && hasLocation(caller.Location) {
		return Selection{Strategy: types.StrategyGeographic, Reason: "geographic routing enabled"}
	}

	return Selection{Strategy: types.StrategyRoundRobin, Reason: "default"}
}

// fallbackStrategy guards against unset or invalid configured strategies
func fallbackStrategy(s, def types.Strategy) types.Strategy {
	if s.Valid() {
		return s
	}
	return def
}

func hasLocation(loc types.Location) bool {
	return loc.City != "" || loc.State != "" || loc.Country != "" || loc.Timezone != ""
}

package bootstrap

import (
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

// NormalizeFlowConfig validates and normalizes a FlowConfig: version must
// be 1 (or absent, defaulting to 1), steps may only toggle members of
// OptionalStepIDs, and ui.verbosity is folded to lowercase ASCII. Patch
// mode (a JSON-patch-style wrapper the original's HTTP handler accepts)
// is not ported: it is UI-surface sugar over this same normalization,
// out of scope for a core engine with no HTTP handlers of its own.
func NormalizeFlowConfig(cfg FlowConfig) (FlowConfig, error) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version != 1 {
		return FlowConfig{}, wizarderr.Validation("flow_config.version must be 1",
			wizarderr.Detail{Path: "$.version", Reason: "invalid_value"})
	}

	for stepID, override := range cfg.Steps {
		if !OptionalStepIDs[stepID] && !override.Enabled {
			return FlowConfig{}, wizarderr.InvariantViolation(
				"cannot disable mandatory step "+stepID,
				wizarderr.Detail{Path: "$.steps." + stepID + ".enabled", Reason: "mandatory_step_disabled"},
			)
		}
	}

	if cfg.UI != nil {
		if v, ok := cfg.UI["verbosity"]; ok {
			if s, ok := v.(string); ok {
				cfg.UI["verbosity"] = strings.ToLower(fingerprint.ToASCII(s))
			}
		}
	}

	return cfg, nil
}

// MergeFlowConfigOverrides applies a legacy testing-hook override map
// (step_id -> enabled) onto an already-normalized FlowConfig. Only
// optional steps may be toggled; mandatory-step overrides are rejected.
func MergeFlowConfigOverrides(cfg FlowConfig, overrides map[string]bool) (FlowConfig, error) {
	if len(overrides) == 0 {
		return cfg, nil
	}
	steps := make(map[string]FlowConfigStepOverride, len(cfg.Steps)+len(overrides))
	for k, v := range cfg.Steps {
		steps[k] = v
	}
	for stepID, enabled := range overrides {
		if !OptionalStepIDs[stepID] {
			return FlowConfig{}, wizarderr.InvariantViolation(
				"cannot override mandatory step "+stepID,
				wizarderr.Detail{Path: "$.steps." + stepID, Reason: "mandatory_step_override"},
			)
		}
		steps[stepID] = FlowConfigStepOverride{Enabled: enabled}
	}
	cfg.Steps = steps
	return cfg, nil
}

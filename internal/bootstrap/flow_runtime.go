package bootstrap

import "github.com/michalholes/audiomason2-sub000/internal/wizarderr"

// FlowID identifies the one flow this wizard ever builds.
const FlowID = "import_v1"

// CanonicalStepOrder is the fixed 15-step ordering a WizardDefinition
// bootstraps to and every effective workflow snapshot is filtered from.
var CanonicalStepOrder = []string{
	"select_authors",
	"select_books",
	"plan_preview_batch",
	"effective_author_title",
	"filename_policy",
	"covers_policy",
	"id3_policy",
	"audio_processing",
	"publish_policy",
	"delete_source_policy",
	"conflict_policy",
	"parallelism",
	"final_summary_confirm",
	"resolve_conflicts_batch",
	"processing",
}

// ConditionalStepIDs are steps the engine only visits under a runtime
// condition (here, only when conflicts require resolution). They count
// as mandatory: a conditional step cannot be toggled off by FlowConfig,
// it just may never be reached in a given run.
var ConditionalStepIDs = map[string]bool{
	"resolve_conflicts_batch": true,
}

// OptionalStepIDs are the steps a FlowConfig may disable.
var OptionalStepIDs = map[string]bool{
	"filename_policy":      true,
	"covers_policy":        true,
	"id3_policy":           true,
	"audio_processing":     true,
	"publish_policy":       true,
	"delete_source_policy": true,
	"parallelism":          true,
}

// MandatoryStepIDs is every canonical step not in OptionalStepIDs,
// including the conditional ones.
var MandatoryStepIDs = func() map[string]bool {
	out := map[string]bool{}
	for _, id := range CanonicalStepOrder {
		if !OptionalStepIDs[id] {
			out[id] = true
		}
	}
	return out
}()

// baseRequiredStepIDs is the 6-member subset EnforceMandatoryConstraints
// checks for presence and relative ordering: the load-bearing skeleton a
// workflow snapshot can never drop or reorder, independent of whether
// every other mandatory step is present.
var baseRequiredStepIDs = []string{
	"select_authors",
	"select_books",
	"plan_preview_batch",
	"conflict_policy",
	"final_summary_confirm",
	"processing",
}

func isEnabled(stepID string, flowConfig FlowConfig) bool {
	if !OptionalStepIDs[stepID] {
		return true
	}
	if ov, ok := flowConfig.Steps[stepID]; ok {
		return ov.Enabled
	}
	return true
}

// BuildEffectiveWorkflowSnapshot filters a WizardDefinition's canonical
// step order down to the steps a FlowConfig leaves enabled, then
// enforces the structural constraints the result must satisfy.
func BuildEffectiveWorkflowSnapshot(def WizardDefinition, flowConfig FlowConfig) ([]string, error) {
	var order []string
	for _, s := range def.Steps {
		if isEnabled(s.StepID, flowConfig) {
			order = append(order, s.StepID)
		}
	}
	if err := EnforceMandatoryConstraints(order); err != nil {
		return nil, err
	}
	return order, nil
}

// EnforceMandatoryConstraints checks that every member of
// baseRequiredStepIDs is present in order, in that relative sequence,
// that "processing" appears exactly once, and that it is the terminal
// step — the one non-negotiable shape every effective workflow snapshot
// must have, regardless of which optional steps were toggled off.
func EnforceMandatoryConstraints(order []string) error {
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}

	var idxs []int
	for _, req := range baseRequiredStepIDs {
		i, ok := pos[req]
		if !ok {
			return wizarderr.ErrFinalize
		}
		idxs = append(idxs, i)
	}
	for i := 1; i < len(idxs); i++ {
		if idxs[i] < idxs[i-1] {
			return wizarderr.ErrFinalize
		}
	}

	count := 0
	for _, id := range order {
		if id == "processing" {
			count++
		}
	}
	if count != 1 {
		return wizarderr.ErrFinalize
	}
	if len(order) == 0 || order[len(order)-1] != "processing" {
		return wizarderr.ErrFinalize
	}
	return nil
}

// BuildFlowModel projects a Catalog's field schemas onto step_order,
// attaching each step's runtime phase (2 for "processing", 1 otherwise)
// and whether it belongs to MandatoryStepIDs.
func BuildFlowModel(catalog CatalogModel, flowConfig FlowConfig, stepOrder []string) (EffectiveModel, error) {
	for id := range MandatoryStepIDs {
		if ConditionalStepIDs[id] {
			continue
		}
		found := false
		for _, s := range stepOrder {
			if s == id {
				found = true
				break
			}
		}
		if !found {
			return EffectiveModel{}, wizarderr.ErrFinalize
		}
	}

	byID := map[string]StepSchema{}
	for _, s := range catalog.Steps {
		byID[s.StepID] = s
	}

	steps := make([]EffectiveStep, 0, len(stepOrder))
	for _, id := range stepOrder {
		schema, ok := byID[id]
		if !ok {
			return EffectiveModel{}, wizarderr.ErrFinalize
		}
		phase := 1
		if id == "processing" {
			phase = 2
		}
		steps = append(steps, EffectiveStep{
			StepID:   id,
			Title:    schema.Title,
			Phase:    phase,
			Required: MandatoryStepIDs[id],
			Fields:   append([]FieldDef(nil), schema.Fields...),
		})
	}

	return EffectiveModel{FlowID: FlowID, Steps: steps}, nil
}

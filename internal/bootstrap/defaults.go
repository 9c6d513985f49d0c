package bootstrap

import (
	"context"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

const (
	catalogRelPath          = "import/catalog/catalog.json"
	flowRelPath             = "import/flow/current.json"
	flowConfigRelPath       = "import/config/flow_config.json"
	wizardDefinitionRelPath = "import/definitions/wizard_definition.json"
)

func intPtr(v int) *int { return &v }

// defaultFields returns the concrete field schema shipped for a given
// canonical step id. The catalog this bootstraps is fuller than the
// original's (whose default steps ship with empty field lists and rely
// on an out-of-band catalog-authoring step this source excerpt never
// shows); every name here is one spec.md itself names as a wire
// contract a caller submits, so the bootstrap default makes the
// contract concretely testable instead of presupposing an external
// authoring tool.
func defaultFields(stepID string) []FieldDef {
	switch stepID {
	case "select_authors":
		return []FieldDef{{Name: "author_ids", Type: "multi_select_indexed", Required: false, Items: []SelectItem{}}}
	case "select_books":
		return []FieldDef{{Name: "book_ids", Type: "multi_select_indexed", Required: false, Items: []SelectItem{}}}
	case "effective_author_title":
		return []FieldDef{
			{Name: "author_override", Type: "text", Required: false},
			{Name: "title_override", Type: "text", Required: false},
		}
	case "filename_policy":
		return []FieldDef{
			{Name: "template", Type: "select", Required: false},
			{Name: "enabled", Type: "toggle", Required: true},
		}
	case "covers_policy":
		return []FieldDef{
			{Name: "enabled", Type: "toggle", Required: true},
			{Name: "source", Type: "select", Required: false},
		}
	case "id3_policy":
		return []FieldDef{
			{Name: "enabled", Type: "toggle", Required: true},
			{Name: "majority_vote", Type: "toggle", Required: false},
		}
	case "audio_processing":
		return []FieldDef{
			{Name: "enabled", Type: "toggle", Required: true},
			{Name: "confirmed", Type: "confirm", Required: false},
			{Name: "bitrate_mode", Type: "select", Required: false},
			{Name: "bitrate_kbps", Type: "number", Required: false, Constraints: FieldConstraints{Min: intPtr(32), Max: intPtr(320)}},
			{Name: "loudnorm", Type: "toggle", Required: false},
		}
	case "publish_policy":
		return []FieldDef{
			{Name: "target", Type: "select", Required: false},
			{Name: "enabled", Type: "toggle", Required: true},
		}
	case "delete_source_policy":
		return []FieldDef{
			{Name: "enabled", Type: "toggle", Required: true},
			{Name: "guard_enabled", Type: "toggle", Required: false},
		}
	case "conflict_policy":
		return []FieldDef{{Name: "mode", Type: "select", Required: true}}
	case "parallelism":
		return []FieldDef{{Name: "parallelism_n", Type: "number", Required: true, Constraints: FieldConstraints{Min: intPtr(1)}}}
	case "final_summary_confirm":
		return []FieldDef{{Name: "confirm_start", Type: "confirm", Required: true}}
	case "resolve_conflicts_batch":
		return []FieldDef{{Name: "confirm", Type: "confirm", Required: true}}
	default:
		return []FieldDef{}
	}
}

func titleCase(stepID string) string {
	out := make([]rune, 0, len(stepID))
	upNext := true
	for _, r := range stepID {
		if r == '_' {
			out = append(out, ' ')
			upNext = true
			continue
		}
		if upNext && r >= 'a' && r <= 'z' {
			r -= 32
		}
		upNext = false
		out = append(out, r)
	}
	return string(out)
}

func makeDefaultSteps() []StepSchema {
	steps := make([]StepSchema, 0, len(CanonicalStepOrder))
	for _, id := range CanonicalStepOrder {
		steps = append(steps, StepSchema{
			StepID:         id,
			Title:          titleCase(id),
			MessageID:      id + ".title",
			DefaultText:    titleCase(id),
			AllowedActions: []string{"back", "next"},
			Fields:         defaultFields(id),
			Validation:     []any{},
			StateEffects:   []any{},
		})
	}
	return steps
}

// DefaultCatalog is the bootstrap catalog.json document.
func DefaultCatalog() CatalogModel {
	return CatalogModel{Version: 1, Steps: makeDefaultSteps()}
}

// DefaultFlow is the bootstrap flow/current.json document: a linear node
// list over the full canonical order, including "processing" as the
// terminal node so EnforceMandatoryConstraints is satisfiable straight
// out of the box. The original's own default flow document omits
// "processing" from its node list even though its own
// wizard_definition_model requires "processing" to be present and
// terminal in the effective step order -- an inconsistency between its
// defaults.py and flow_runtime.py this bootstrap does not reproduce.
func DefaultFlow() FlowModel {
	return FlowModel{
		Version:     1,
		EntryStepID: CanonicalStepOrder[0],
		Nodes:       LinearizeNodes(CanonicalStepOrder),
	}
}

// DefaultFlowConfig is the bootstrap config/flow_config.json document:
// every optional step enabled.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{Version: 1, Steps: map[string]FlowConfigStepOverride{}}
}

// DefaultWizardDefinition is the bootstrap definitions/wizard_definition.json
// document: the canonical step order, unfiltered.
func DefaultWizardDefinition() WizardDefinition {
	steps := make([]WizardDefinitionStep, 0, len(CanonicalStepOrder))
	for _, id := range CanonicalStepOrder {
		steps = append(steps, WizardDefinitionStep{StepID: id})
	}
	return WizardDefinition{Version: 1, WizardID: "import", Steps: steps}
}

// EnsureDefaultModels bootstraps the four model documents under the
// Wizards root if they do not already exist. Existing documents are
// left untouched: a session is created against whatever model is
// currently on disk, bootstrap or hand-authored.
func EnsureDefaultModels(ctx context.Context, fs *jail.FileService) error {
	if _, err := fs.AtomicWriteJSONIfMissing(ctx, jail.RootWizards, catalogRelPath, DefaultCatalog()); err != nil {
		return err
	}
	if _, err := fs.AtomicWriteJSONIfMissing(ctx, jail.RootWizards, flowRelPath, DefaultFlow()); err != nil {
		return err
	}
	if _, err := fs.AtomicWriteJSONIfMissing(ctx, jail.RootWizards, flowConfigRelPath, DefaultFlowConfig()); err != nil {
		return err
	}
	if _, err := fs.AtomicWriteJSONIfMissing(ctx, jail.RootWizards, wizardDefinitionRelPath, DefaultWizardDefinition()); err != nil {
		return err
	}
	return nil
}

// LoadCatalog reads and decodes catalog.json.
func LoadCatalog(ctx context.Context, fs *jail.FileService) (CatalogModel, error) {
	var out CatalogModel
	if err := readJSONInto(ctx, fs, catalogRelPath, &out); err != nil {
		return CatalogModel{}, err
	}
	return out, nil
}

// LoadFlow reads and decodes flow/current.json.
func LoadFlow(ctx context.Context, fs *jail.FileService) (FlowModel, error) {
	var out FlowModel
	if err := readJSONInto(ctx, fs, flowRelPath, &out); err != nil {
		return FlowModel{}, err
	}
	return out, nil
}

// LoadFlowConfig reads and decodes config/flow_config.json.
func LoadFlowConfig(ctx context.Context, fs *jail.FileService) (FlowConfig, error) {
	var out FlowConfig
	if err := readJSONInto(ctx, fs, flowConfigRelPath, &out); err != nil {
		return FlowConfig{}, err
	}
	return out, nil
}

// LoadWizardDefinition reads and decodes definitions/wizard_definition.json.
func LoadWizardDefinition(ctx context.Context, fs *jail.FileService) (WizardDefinition, error) {
	var out WizardDefinition
	if err := readJSONInto(ctx, fs, wizardDefinitionRelPath, &out); err != nil {
		return WizardDefinition{}, err
	}
	return out, nil
}

// SaveFlowConfig atomically persists a normalized FlowConfig.
func SaveFlowConfig(ctx context.Context, fs *jail.FileService, cfg FlowConfig) error {
	return fs.AtomicWriteJSON(ctx, jail.RootWizards, flowConfigRelPath, cfg)
}

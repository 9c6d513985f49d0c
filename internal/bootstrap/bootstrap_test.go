package bootstrap

import (
	"context"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newTestFS(t *testing.T) *jail.FileService {
	t.Helper()
	fs, err := jail.NewFileService(jail.Roots{jail.RootWizards: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	return fs
}

func TestEnsureDefaultModelsBootstrapsOnce(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	if err := EnsureDefaultModels(ctx, fs); err != nil {
		t.Fatalf("EnsureDefaultModels failed: %v", err)
	}
	catalog, err := LoadCatalog(ctx, fs)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(catalog.Steps) != len(CanonicalStepOrder) {
		t.Fatalf("expected %d steps, got %d", len(CanonicalStepOrder), len(catalog.Steps))
	}

	// Mutate on disk, then re-run: an existing document must survive.
	catalog.Version = 1
	catalog.Steps = catalog.Steps[:1]
	if err := fs.AtomicWriteJSON(ctx, jail.RootWizards, catalogRelPath, catalog); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := EnsureDefaultModels(ctx, fs); err != nil {
		t.Fatalf("second EnsureDefaultModels failed: %v", err)
	}
	reloaded, err := LoadCatalog(ctx, fs)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(reloaded.Steps) != 1 {
		t.Fatalf("expected bootstrap to leave existing catalog untouched, got %d steps", len(reloaded.Steps))
	}
}

func TestValidateModelsAcceptsDefaults(t *testing.T) {
	if err := ValidateModels(DefaultCatalog(), DefaultFlow()); err != nil {
		t.Fatalf("ValidateModels rejected defaults: %v", err)
	}
}

func TestValidateModelsRejectsMissingRequiredStep(t *testing.T) {
	catalog := DefaultCatalog()
	catalog.Steps = catalog.Steps[1:] // drop select_authors
	if err := ValidateModels(catalog, DefaultFlow()); err == nil {
		t.Fatalf("expected validation error for missing required step")
	}
}

func TestBuildEffectiveWorkflowSnapshotFiltersOptional(t *testing.T) {
	def := DefaultWizardDefinition()
	cfg := DefaultFlowConfig()
	cfg.Steps["audio_processing"] = FlowConfigStepOverride{Enabled: false}

	order, err := BuildEffectiveWorkflowSnapshot(def, cfg)
	if err != nil {
		t.Fatalf("BuildEffectiveWorkflowSnapshot failed: %v", err)
	}
	for _, id := range order {
		if id == "audio_processing" {
			t.Fatalf("expected audio_processing to be filtered out: %v", order)
		}
	}
	if order[len(order)-1] != "processing" {
		t.Fatalf("expected processing to remain terminal: %v", order)
	}
}

func TestBuildEffectiveWorkflowSnapshotRejectsMissingMandatory(t *testing.T) {
	def := DefaultWizardDefinition()
	cfg := DefaultFlowConfig()
	// Forge a definition missing a mandatory step entirely.
	var trimmed []WizardDefinitionStep
	for _, s := range def.Steps {
		if s.StepID == "conflict_policy" {
			continue
		}
		trimmed = append(trimmed, s)
	}
	def.Steps = trimmed

	if _, err := BuildEffectiveWorkflowSnapshot(def, cfg); err == nil {
		t.Fatalf("expected error when a mandatory step is absent from the definition")
	}
}

func TestBuildFlowModelAssignsPhaseAndRequired(t *testing.T) {
	order, err := BuildEffectiveWorkflowSnapshot(DefaultWizardDefinition(), DefaultFlowConfig())
	if err != nil {
		t.Fatalf("BuildEffectiveWorkflowSnapshot failed: %v", err)
	}
	model, err := BuildFlowModel(DefaultCatalog(), DefaultFlowConfig(), order)
	if err != nil {
		t.Fatalf("BuildFlowModel failed: %v", err)
	}
	last := model.Steps[len(model.Steps)-1]
	if last.StepID != "processing" || last.Phase != 2 {
		t.Fatalf("expected processing as phase-2 terminal step, got %+v", last)
	}
	for _, s := range model.Steps {
		if s.StepID == "select_authors" && !s.Required {
			t.Errorf("select_authors should be required")
		}
		if s.StepID == "parallelism" && s.Required {
			t.Errorf("parallelism should be optional")
		}
	}
}

func TestNormalizeFlowConfigRejectsDisablingMandatoryStep(t *testing.T) {
	cfg := FlowConfig{Version: 1, Steps: map[string]FlowConfigStepOverride{
		"select_authors": {Enabled: false},
	}}
	if _, err := NormalizeFlowConfig(cfg); err == nil {
		t.Fatalf("expected error disabling a mandatory step")
	}
}

func TestNormalizeFlowConfigLowercasesVerbosity(t *testing.T) {
	cfg := FlowConfig{Version: 1, UI: map[string]any{"verbosity": "DEBUG"}}
	out, err := NormalizeFlowConfig(cfg)
	if err != nil {
		t.Fatalf("NormalizeFlowConfig failed: %v", err)
	}
	if out.UI["verbosity"] != "debug" {
		t.Fatalf("expected lowercase verbosity, got %v", out.UI["verbosity"])
	}
}

func TestMergeFlowConfigOverridesRejectsMandatory(t *testing.T) {
	cfg := DefaultFlowConfig()
	if _, err := MergeFlowConfigOverrides(cfg, map[string]bool{"select_authors": false}); err == nil {
		t.Fatalf("expected error overriding mandatory step")
	}
}

func TestMergeFlowConfigOverridesTogglesOptional(t *testing.T) {
	cfg := DefaultFlowConfig()
	merged, err := MergeFlowConfigOverrides(cfg, map[string]bool{"parallelism": false})
	if err != nil {
		t.Fatalf("MergeFlowConfigOverrides failed: %v", err)
	}
	if merged.Steps["parallelism"].Enabled {
		t.Fatalf("expected parallelism disabled after override")
	}
}

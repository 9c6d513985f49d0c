// Package bootstrap owns the import wizard's static model layer: the
// Catalog (per-step field schemas), the Flow (step graph), FlowConfig
// (user-togglable optional steps), and the WizardDefinition (canonical
// step ordering). It bootstraps default documents on first use and
// projects them, together with a FlowConfig, into the runtime
// EffectiveModel a session is built from.
package bootstrap

// FieldConstraints carries the optional min/max bounds a number field is
// validated against. Both are nil when the field is unconstrained.
type FieldConstraints struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// SelectItem is one choosable entry of a multi_select_indexed field.
type SelectItem struct {
	ItemID string `json:"item_id"`
	Label  string `json:"label"`
}

// FieldDef is a single step field's wire schema, matching the field
// types field_schema_validation.py accepts: toggle, confirm, text,
// select, number, multi_select_indexed, table_edit.
type FieldDef struct {
	Name          string           `json:"name"`
	Type          string           `json:"type"`
	Required      bool             `json:"required"`
	Constraints   FieldConstraints `json:"constraints"`
	Items         []SelectItem     `json:"items,omitempty"`
	PreviewAction map[string]any   `json:"preview_action,omitempty"`
}

// StepSchema is one step's entry in the Catalog.
type StepSchema struct {
	StepID         string     `json:"step_id"`
	Title          string     `json:"title"`
	MessageID      string     `json:"message_id"`
	DefaultText    string     `json:"default_text"`
	AllowedActions []string   `json:"allowed_actions"`
	Fields         []FieldDef `json:"fields"`
	Validation     []any      `json:"validation"`
	StateEffects   []any      `json:"state_effects"`
}

// CatalogModel is the on-disk catalog.json document: the full set of
// step schemas a Flow's nodes reference by step_id.
type CatalogModel struct {
	Version int          `json:"version"`
	Steps   []StepSchema `json:"steps"`
}

// FlowNode is one node of a Flow's step graph. NextStepID/PrevStepID are
// empty when the node sits at an edge of the graph.
type FlowNode struct {
	StepID     string `json:"step_id"`
	NextStepID string `json:"next_step_id,omitempty"`
	PrevStepID string `json:"prev_step_id,omitempty"`
}

// FlowModel is the on-disk flow/current.json document: an entry point
// plus an ordered (or graph-shaped) set of nodes.
type FlowModel struct {
	Version     int        `json:"version"`
	EntryStepID string     `json:"entry_step_id"`
	Nodes       []FlowNode `json:"nodes"`
}

// FlowConfigStepOverride toggles one optional step on or off.
type FlowConfigStepOverride struct {
	Enabled bool `json:"enabled"`
}

// FlowConfig is the on-disk config/flow_config.json document: the only
// user-mutable half of the model layer. Steps may only disable members
// of OptionalStepIDs; the mandatory set can never be toggled off.
type FlowConfig struct {
	Version  int                               `json:"version"`
	Steps    map[string]FlowConfigStepOverride `json:"steps,omitempty"`
	Defaults map[string]any                    `json:"defaults,omitempty"`
	UI       map[string]any                    `json:"ui,omitempty"`
}

// WizardDefinitionStep is one entry of a WizardDefinition's canonical
// step ordering.
type WizardDefinitionStep struct {
	StepID string `json:"step_id"`
}

// WizardDefinition is the on-disk definitions/wizard_definition.json
// document: the authoritative canonical step order a FlowConfig filters
// down into an effective workflow snapshot.
type WizardDefinition struct {
	Version  int                    `json:"version"`
	WizardID string                 `json:"wizard_id"`
	Steps    []WizardDefinitionStep `json:"steps"`
}

// EffectiveStep is one step of a session's EffectiveModel: a catalog
// step schema projected to a single runtime phase/required flag.
type EffectiveStep struct {
	StepID   string     `json:"step_id"`
	Title    string     `json:"title"`
	Phase    int        `json:"phase"`
	Required bool       `json:"required"`
	Fields   []FieldDef `json:"fields"`
}

// EffectiveModel is the runtime projection a session is created from:
// catalog field schemas, ordered per the effective workflow snapshot,
// with phase/required flags attached.
type EffectiveModel struct {
	FlowID string          `json:"flow_id"`
	Steps  []EffectiveStep `json:"steps"`
}

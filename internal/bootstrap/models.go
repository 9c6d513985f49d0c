package bootstrap

import "github.com/michalholes/audiomason2-sub000/internal/wizarderr"

// requiredStepIDs mirrors CanonicalStepOrder minus "processing": the set
// every Catalog must define a schema for before a Flow can reference it.
// "processing" is deliberately excluded here, the same way the original
// model validator excludes it — it is a computed-only step the catalog
// need not carry interactive field schemas for.
var requiredStepIDs = func() map[string]bool {
	out := map[string]bool{}
	for _, id := range CanonicalStepOrder {
		if id != "processing" {
			out[id] = true
		}
	}
	return out
}()

// ValidateModels checks that catalog defines every member of
// requiredStepIDs, that the flow has final_summary_confirm and
// conflict_policy nodes, and that the flow's own internal references
// (next/prev/entry) all resolve to real nodes. It does not check that
// every flow node has a catalog schema.
func ValidateModels(catalog CatalogModel, flow FlowModel) error {
	if catalog.Version != 1 {
		return wizarderr.ErrModelValidation
	}
	catalogIDs := map[string]bool{}
	for _, s := range catalog.Steps {
		if s.StepID == "" {
			return wizarderr.ErrModelValidation
		}
		catalogIDs[s.StepID] = true
	}
	for id := range requiredStepIDs {
		if !catalogIDs[id] {
			return wizarderr.ErrModelValidation
		}
	}

	if flow.Version != 1 {
		return wizarderr.ErrModelValidation
	}
	nodeIDs := map[string]bool{}
	for _, n := range flow.Nodes {
		if n.StepID == "" {
			return wizarderr.ErrModelValidation
		}
		nodeIDs[n.StepID] = true
	}
	if flow.EntryStepID == "" || !nodeIDs[flow.EntryStepID] {
		return wizarderr.ErrModelValidation
	}
	if !nodeIDs["final_summary_confirm"] || !nodeIDs["conflict_policy"] {
		return wizarderr.ErrModelValidation
	}
	for _, n := range flow.Nodes {
		if n.NextStepID != "" && !nodeIDs[n.NextStepID] {
			return wizarderr.ErrModelValidation
		}
		if n.PrevStepID != "" && !nodeIDs[n.PrevStepID] {
			return wizarderr.ErrModelValidation
		}
	}
	return nil
}

// LinearizeNodes fills in NextStepID/PrevStepID for an implicit linear
// node list (one derived purely from step_id order, with no explicit
// graph edges authored), mirroring FlowModel.from_dict's handling of a
// bare list[str] nodes payload.
func LinearizeNodes(stepIDs []string) []FlowNode {
	nodes := make([]FlowNode, len(stepIDs))
	for i, id := range stepIDs {
		n := FlowNode{StepID: id}
		if i > 0 {
			n.PrevStepID = stepIDs[i-1]
		}
		if i < len(stepIDs)-1 {
			n.NextStepID = stepIDs[i+1]
		}
		nodes[i] = n
	}
	return nodes
}

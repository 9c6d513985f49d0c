package runner

import "github.com/michalholes/audiomason2-sub000/internal/wizarderr"

func wizardErrRunStateMissing(runID string) error {
	return wizarderr.NotFound("import run state not found for run_id: "+runID,
		wizarderr.Detail{Path: "$.run_id", Reason: "not_found"})
}

package main

import "context"

// Run enters phase 2 for a session and materializes its job records.
func (c *StartCmd) Run(app *App) error {
	jobIDs, batchSize, err := app.Wizard.StartProcessing(context.Background(), c.SessionID)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"job_ids":    jobIDs,
		"batch_size": batchSize,
	})
}

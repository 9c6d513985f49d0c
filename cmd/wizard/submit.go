package main

import "context"

// Run submits an answer payload for a session's current step.
func (c *SubmitCmd) Run(app *App) error {
	payload, err := parsePayload(c.JSON)
	if err != nil {
		return err
	}
	st, err := app.Wizard.SubmitStep(context.Background(), c.SessionID, c.StepID, payload)
	if err != nil {
		return err
	}
	return printJSON(st)
}

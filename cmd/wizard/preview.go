package main

import "context"

// Run previews a step submission without committing it to the session.
func (c *PreviewCmd) Run(app *App) error {
	payload, err := parsePayload(c.JSON)
	if err != nil {
		return err
	}
	res, err := app.Wizard.PreviewAction(context.Background(), c.SessionID, c.StepID, payload)
	if err != nil {
		return err
	}
	return printJSON(res)
}

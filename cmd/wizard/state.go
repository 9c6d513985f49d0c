package main

import "context"

// Run prints a session's persisted state.
func (c *StateCmd) Run(app *App) error {
	st, err := app.Wizard.GetState(context.Background(), c.SessionID)
	if err != nil {
		return err
	}
	return printJSON(st)
}

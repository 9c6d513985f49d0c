package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/wizard"
)

// Run starts or resumes a session against the given source tree.
func (c *CreateCmd) Run(app *App) error {
	ctx := context.Background()

	overrides := map[string]bool{}
	for _, raw := range c.Override {
		stepID, val, err := parseOverride(raw)
		if err != nil {
			return err
		}
		overrides[stepID] = val
	}

	st, err := app.Wizard.CreateSession(ctx, wizard.CreateSessionParams{
		SourceRoot:          c.Root,
		SourceRelativePath:  c.Path,
		Mode:                c.Mode,
		FlowConfigOverrides: overrides,
	})
	if err != nil {
		return err
	}
	return printJSON(st)
}

func parseOverride(raw string) (string, bool, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return "", false, fmt.Errorf("override %q must be STEP_ID=true|false", raw)
	}
	switch parts[1] {
	case "true":
		return parts[0], true, nil
	case "false":
		return parts[0], false, nil
	default:
		return "", false, fmt.Errorf("override %q value must be true or false", raw)
	}
}

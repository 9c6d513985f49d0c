package main

import "fmt"

// Run prints build version information.
func (c *VersionCmd) Run(app *App) error {
	fmt.Printf("wizard %s (%s)\n", version, commit)
	return nil
}

// Package main defines the wizard CLI structure using kong.
package main

// CLI defines the command-line interface.
type CLI struct {
	Config string `help:"Config file path (defaults to ./wizard.toml if present)"`

	Create  CreateCmd  `cmd:"" help:"Start or resume an import session against a source tree"`
	State   StateCmd   `cmd:"" help:"Show a session's current state"`
	Submit  SubmitCmd  `cmd:"" help:"Submit an answer for a session's current step"`
	Preview PreviewCmd `cmd:"" help:"Preview a step submission without committing it"`
	Start   StartCmd   `cmd:"" help:"Enter phase 2 and enqueue a session's import jobs"`
	Serve   ServeCmd   `cmd:"" help:"Run the worker pool against PENDING import jobs"`
	Watch   WatchCmd   `cmd:"" help:"Watch a source root and publish discovery.changed events on filesystem activity"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// CreateCmd starts or resumes a session.
type CreateCmd struct {
	Root     string   `required:"" help:"Source root name: inbox, stage, or outbox"`
	Path     string   `help:"Relative path under the source root"`
	Mode     string   `required:"" enum:"stage,inplace" help:"Copy mode: stage or inplace"`
	Override []string `help:"flow_config override STEP_ID=true|false (repeatable)"`
}

// StateCmd prints a session's persisted state.
type StateCmd struct {
	SessionID string `arg:""`
}

// SubmitCmd submits a step's answer.
type SubmitCmd struct {
	SessionID string `arg:""`
	StepID    string `arg:""`
	JSON      string `short:"j" default:"{}" help:"Canonical JSON payload for this step"`
}

// PreviewCmd previews a step submission without committing it.
type PreviewCmd struct {
	SessionID string `arg:""`
	StepID    string `arg:""`
	JSON      string `short:"j" default:"{}" help:"Canonical JSON payload for this step"`
}

// StartCmd enters phase 2 for a session.
type StartCmd struct {
	SessionID string `arg:""`
}

// ServeCmd runs the worker pool until interrupted.
type ServeCmd struct {
	Workers int `short:"w" help:"Worker count (defaults to the config file's queue.workers, clamped to [1, NumCPU])"`
}

// WatchCmd watches a source root for filesystem changes.
type WatchCmd struct {
	Root string `required:"" help:"Source root name: inbox, stage, or outbox"`
	Path string `help:"Relative path under the source root to watch"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Command wizard is the CLI entrypoint for the Import Wizard Core: it
// wires the jailed filesystem, the session engine, the job queue, and
// the per-book runner together, and exposes each wizard operation as a
// subcommand.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/michalholes/audiomason2-sub000/internal/config"
	"github.com/michalholes/audiomason2-sub000/internal/diagnostics"
	"github.com/michalholes/audiomason2-sub000/internal/discovery"
	"github.com/michalholes/audiomason2-sub000/internal/fingerprint"
	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
	"github.com/michalholes/audiomason2-sub000/internal/queue"
	"github.com/michalholes/audiomason2-sub000/internal/registry"
	"github.com/michalholes/audiomason2-sub000/internal/runner"
	"github.com/michalholes/audiomason2-sub000/internal/wizard"
)

var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	_ = godotenv.Load()
}

// App bundles every wizard-domain service a subcommand might need. Kong
// passes it to each Run method via kong.Bind.
type App struct {
	FS        *jail.FileService
	Bus       *diagnostics.Bus
	Discovery *discovery.Service
	Jobs      *jobstore.Service
	RunStates *jobstore.RunStateStore
	Store     *jobstore.Store
	Registry  *registry.Registry
	Wizard    *wizard.Engine
	Runner    *runner.Engine
	Cfg       *config.Config
}

func buildApp(cfg *config.Config) (*App, error) {
	fs, err := jail.NewFileService(jail.Roots{
		jail.RootInbox:   cfg.Roots.Inbox,
		jail.RootStage:   cfg.Roots.Stage,
		jail.RootOutbox:  cfg.Roots.Outbox,
		jail.RootJobs:    cfg.Roots.Jobs,
		jail.RootWizards: cfg.Roots.Wizards,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("build file service: %w", err)
	}

	bus := diagnostics.NewBus()
	disc := discovery.New(fs, bus)
	store := jobstore.NewStore(fs)
	jobsSvc := jobstore.NewService(fs, store, bus)
	runStates := jobstore.NewRunStateStore(fs)
	reg := registry.New(fs, bus)
	reg.Subscribe(bus, disc)

	wiz := wizard.New(fs, bus, disc, jobsSvc, runStates)
	run := runner.New(fs, bus, disc, reg, runStates)

	return &App{
		FS: fs, Bus: bus, Discovery: disc, Jobs: jobsSvc, RunStates: runStates,
		Store: store, Registry: reg, Wizard: wiz, Runner: run, Cfg: cfg,
	}, nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("wizard"),
		kong.Description("Audiobook import wizard: deterministic session-driven discovery, planning, and job processing."),
		kong.UsageOnError(),
		kong.Vars{"version": version, "commit": commit},
	)

	var cfg *config.Config
	var cfgErr error
	if cli.Config != "" {
		cfg, cfgErr = config.LoadFile(cli.Config)
	} else {
		cfg, cfgErr = config.LoadDefault()
	}
	kctx.FatalIfErrorf(cfgErr)

	app, err := buildApp(cfg)
	kctx.FatalIfErrorf(err)

	err = kctx.Run(app)
	kctx.FatalIfErrorf(err)
}

func printJSON(v any) error {
	raw, err := fingerprint.CanonicalBytes(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}

func parsePayload(raw string) (map[string]any, error) {
	payload := map[string]any{}
	if raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return payload, nil
}

func clampWorkers(n int) int {
	if n <= 0 {
		return 1
	}
	if max := runtime.NumCPU(); n > max {
		return max
	}
	return n
}

package jobrequest

import "testing"

func TestBuildStampsIdempotencyKeyOverKeylessDocument(t *testing.T) {
	p := BuildParams{
		SessionID:         "sess-1",
		Mode:              "stage",
		Source:            Source{Root: "inbox", RelativePath: "Library"},
		TargetRoot:        "outbox",
		PlanSummary:       map[string]any{"selected_books": 3},
		ConfigFingerprint: "cfg-fp",
		DiagnosticsContext: DiagnosticsContext{
			ModelFingerprint:           "model-fp",
			DiscoveryFingerprint:       "disc-fp",
			EffectiveConfigFingerprint: "eff-fp",
			ConflictFingerprint:        "conf-fp",
		},
	}

	doc, err := Build(p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.IdempotencyKey == "" {
		t.Fatalf("expected a non-empty idempotency key")
	}
	if len(doc.Actions) != 1 || doc.Actions[0].Type != "import.batch" {
		t.Fatalf("expected exactly one import.batch action, got %+v", doc.Actions)
	}
	if doc.Actions[0].Source != p.Source || doc.Actions[0].Target.Root != p.TargetRoot {
		t.Fatalf("action source/target mismatch: %+v", doc.Actions[0])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	p := BuildParams{
		SessionID:         "sess-1",
		Mode:              "inplace",
		Source:            Source{Root: "inbox", RelativePath: "Library"},
		TargetRoot:        "outbox",
		PlanSummary:       map[string]any{"selected_books": 1},
		ConfigFingerprint: "cfg-fp",
	}

	first, err := Build(p)
	if err != nil {
		t.Fatalf("Build 1: %v", err)
	}
	second, err := Build(p)
	if err != nil {
		t.Fatalf("Build 2: %v", err)
	}
	if first.IdempotencyKey != second.IdempotencyKey {
		t.Fatalf("expected identical inputs to produce identical idempotency keys, got %q vs %q",
			first.IdempotencyKey, second.IdempotencyKey)
	}
}

func TestPlannedUnitsCountPrefersSelectedBooks(t *testing.T) {
	n := PlannedUnitsCount(map[string]any{
		"selected_books": 5,
		"files":          100,
		"dirs":           100,
	})
	if n != 5 {
		t.Fatalf("expected selected_books to take priority, got %d", n)
	}
}

func TestPlannedUnitsCountFallsBackToDiscoveredSum(t *testing.T) {
	n := PlannedUnitsCount(map[string]any{
		"files":   2,
		"dirs":    3,
		"bundles": 1,
	})
	if n != 6 {
		t.Fatalf("expected files+dirs+bundles=6, got %d", n)
	}
}

func TestPlannedUnitsCountZeroWhenEmpty(t *testing.T) {
	if n := PlannedUnitsCount(map[string]any{}); n != 0 {
		t.Fatalf("expected 0 for an empty plan summary, got %d", n)
	}
}

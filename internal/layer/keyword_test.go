package layer

import (
	"context"
	"testing"

	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Target{
		{
			Name:        "development-master",
			Description: "code changes, bug fixes, refactoring",
			Keywords:    []string{"bug", "fix", "refactor", "authentication", "login"},
		},
		{
			Name:        "operations-master",
			Description: "deployments, infrastructure, alerts",
			Keywords:    []string{"deploy", "infrastructure", "alert", "disk usage"},
		},
		{
			Name:        "analytics-master",
			Description: "reports, dashboards, queries",
			Keywords:    []string{"report", "dashboard", "query"},
		},
	}, 2)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestKeywordMatch(t *testing.T) {
	k := NewKeyword(testRegistry(t))

	cand, err := k.Attempt(context.Background(), track.Task{
		Description: "Fix authentication bug in login",
	})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if cand.Target != "development-master" {
		t.Errorf("target = %q, want development-master", cand.Target)
	}
	if cand.Confidence <= 0.5 {
		t.Errorf("confidence = %f, want > 0.5 for four keyword hits", cand.Confidence)
	}
	if cand.Confidence > 1 {
		t.Errorf("confidence = %f, out of range", cand.Confidence)
	}
}

func TestKeywordNoMatch(t *testing.T) {
	k := NewKeyword(testRegistry(t))

	cand, err := k.Attempt(context.Background(), track.Task{
		Description: "Completely unrelated philosophical question",
	})
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if cand.Confidence != 0 {
		t.Errorf("confidence = %f, want 0 for no matches", cand.Confidence)
	}
	if cand.Target != "" {
		t.Errorf("target = %q, want empty", cand.Target)
	}
}

func TestKeywordSplitMatchLowersConfidence(t *testing.T) {
	k := NewKeyword(testRegistry(t))

	exclusive, err := k.Attempt(context.Background(), track.Task{
		Description: "fix the refactor bug",
	})
	if err != nil {
		t.Fatal(err)
	}
	split, err := k.Attempt(context.Background(), track.Task{
		Description: "fix the deploy alert dashboard query report",
	})
	if err != nil {
		t.Fatal(err)
	}
	if split.Confidence >= exclusive.Confidence {
		t.Errorf("split match confidence %f should be below exclusive %f",
			split.Confidence, exclusive.Confidence)
	}
}

func TestKeywordDeterministic(t *testing.T) {
	k := NewKeyword(testRegistry(t))
	task := track.Task{Description: "deploy fix for the dashboard bug report"}

	first, err := k.Attempt(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := k.Attempt(context.Background(), task)
		if err != nil {
			t.Fatal(err)
		}
		if again.Target != first.Target || again.Confidence != first.Confidence {
			t.Fatalf("run %d differs: %q/%f vs %q/%f",
				i, again.Target, again.Confidence, first.Target, first.Confidence)
		}
	}
}

func TestArgmaxTieBreaksLexicographically(t *testing.T) {
	scores := map[string]float64{
		"zebra-master": 0.5,
		"alpha-master": 0.5,
		"mid-master":   0.3,
	}
	target, score := Argmax(scores)
	if target != "alpha-master" {
		t.Errorf("tie broke to %q, want alpha-master", target)
	}
	if score != 0.5 {
		t.Errorf("score = %f, want 0.5", score)
	}
}

func TestArgmaxEmpty(t *testing.T) {
	target, score := Argmax(nil)
	if target != "" || score != 0 {
		t.Errorf("empty argmax = %q/%f, want \"\"/0", target, score)
	}
}

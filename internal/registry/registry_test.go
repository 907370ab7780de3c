package registry

import "testing"

func testTargets() []Target {
	return []Target{
		{Name: "development-master", Description: "code changes"},
		{Name: "operations-master", Description: "deployments"},
	}
}

func TestNewRejectsBadTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []Target
	}{
		{"empty list", nil},
		{"unnamed target", []Target{{Description: "x"}}},
		{"duplicate names", []Target{{Name: "a"}, {Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.targets, 25); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestTargetsSorted(t *testing.T) {
	reg, err := New([]Target{
		{Name: "zeta-master"},
		{Name: "alpha-master"},
		{Name: "mid-master"},
	}, 25)
	if err != nil {
		t.Fatal(err)
	}
	got := reg.Targets()
	want := []string{"alpha-master", "mid-master", "zeta-master"}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("position %d = %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestColdStartPromotion(t *testing.T) {
	reg, err := New(testTargets(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if reg.ClassifierEligible("development-master") {
		t.Fatal("fresh target should not be classifier-eligible")
	}

	reg.RecordSample("development-master")
	reg.RecordSample("development-master")
	if reg.ClassifierEligible("development-master") {
		t.Fatal("two samples below minimum of three")
	}

	reg.RecordSample("development-master")
	if !reg.ClassifierEligible("development-master") {
		t.Error("target should be eligible after reaching the minimum")
	}
	if reg.ClassifierEligible("operations-master") {
		t.Error("untouched target should stay cold")
	}
}

func TestSeedSamplesNeverLowersCount(t *testing.T) {
	reg, err := New(testTargets(), 3)
	if err != nil {
		t.Fatal(err)
	}
	reg.SeedSamples("development-master", 10)
	reg.SeedSamples("development-master", 2)

	info := reg.Info()
	for _, ti := range info {
		if ti.Name == "development-master" && ti.RoutedSamples != 10 {
			t.Errorf("routed samples = %d, want 10", ti.RoutedSamples)
		}
	}
}

func TestUnknownTargetIgnored(t *testing.T) {
	reg, err := New(testTargets(), 1)
	if err != nil {
		t.Fatal(err)
	}
	reg.RecordSample("ghost-master")
	if reg.Known("ghost-master") {
		t.Error("unknown target reported as known")
	}
	if reg.ClassifierEligible("ghost-master") {
		t.Error("unknown target reported eligible")
	}
	if len(reg.Info()) != 2 {
		t.Errorf("info length = %d, want 2", len(reg.Info()))
	}
}

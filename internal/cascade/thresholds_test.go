package cascade

import "testing"

func testSpecs() []LayerSpec {
	return []LayerSpec{
		{LayerID: 1, Name: "keyword", ConfidenceThreshold: 0.85},
		{LayerID: 2, Name: "semantic", ConfidenceThreshold: 0.70},
	}
}

func TestThresholdLookup(t *testing.T) {
	th := NewThresholds(testSpecs())

	v, ok := th.Threshold("keyword")
	if !ok || v != 0.85 {
		t.Errorf("keyword = %f/%v, want 0.85/true", v, ok)
	}
	if _, ok := th.Threshold("ghost"); ok {
		t.Error("unknown layer reported present")
	}
}

func TestSetThreshold(t *testing.T) {
	th := NewThresholds(testSpecs())

	if err := th.SetThreshold("keyword", 0.80); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := th.Threshold("keyword"); v != 0.80 {
		t.Errorf("keyword = %f after set, want 0.80", v)
	}

	if err := th.SetThreshold("keyword", 1.5); err == nil {
		t.Error("out-of-range value accepted")
	}
	if err := th.SetThreshold("ghost", 0.5); err == nil {
		t.Error("unknown layer accepted")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	th := NewThresholds(testSpecs())

	snap := th.Snapshot()
	if err := th.SetThreshold("semantic", 0.60); err != nil {
		t.Fatal(err)
	}
	if snap["semantic"] != 0.70 {
		t.Errorf("snapshot mutated by later write: %f", snap["semantic"])
	}

	// Writing into the snapshot must not leak back.
	snap["keyword"] = 0.1
	if v, _ := th.Threshold("keyword"); v != 0.85 {
		t.Errorf("store mutated through snapshot: %f", v)
	}
}

func TestReloadSupersedesTunerWrites(t *testing.T) {
	th := NewThresholds(testSpecs())
	if err := th.SetThreshold("keyword", 0.75); err != nil {
		t.Fatal(err)
	}

	th.Reload(testSpecs())
	if v, _ := th.Threshold("keyword"); v != 0.85 {
		t.Errorf("keyword = %f after reload, want file value 0.85", v)
	}
}

package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestStageNextProgression(t *testing.T) {
	order := map[Stage]Stage{
		StagePending:     StageRendering,
		StageRendering:   StageUploading,
		StageUploading:   StageClassifying,
		StageClassifying: StageGrouping,
		StageGrouping:    StageExtracting,
		StageExtracting:  StageDone,
		StageDone:        StageDone,
	}
	for from, want := range order {
		if got := from.Next(); got != want {
			t.Fatalf("%s.Next() = %s, want %s", from, got, want)
		}
	}
}

func TestUnitSetJSONRoundTripIsSorted(t *testing.T) {
	set := NewUnitSet(5, 1, 3)
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[1,3,5]" {
		t.Fatalf("marshal = %s, want [1,3,5]", data)
	}

	var restored UnitSet
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(restored.Values(), []int{1, 3, 5}) {
		t.Fatalf("restored = %v", restored.Values())
	}
}

func TestSettledRequiresKnownTotal(t *testing.T) {
	cp := NewCheckpoint("doc-1")
	if cp.Settled(StageRendering) {
		t.Fatalf("stage without a total must not be settled")
	}

	cp.Totals[StageRendering] = 2
	cp.CompletedSet(StageRendering).Add(1)
	if cp.Settled(StageRendering) {
		t.Fatalf("1 of 2 units is not settled")
	}

	cp.FailedSet(StageRendering).Add(2)
	if !cp.Settled(StageRendering) {
		t.Fatalf("completed+failed covering the total should settle the stage")
	}
}

func TestPendingUnitsSkipsCompletedAndFailed(t *testing.T) {
	cp := NewCheckpoint("doc-1")
	cp.CompletedSet(StageExtracting).Add(2)
	cp.FailedSet(StageExtracting).Add(4)

	got := cp.PendingUnits(StageExtracting, []int{1, 2, 3, 4, 5})
	if !reflect.DeepEqual(got, []int{1, 3, 5}) {
		t.Fatalf("pending = %v, want [1 3 5]", got)
	}
}

func TestClearFailedOnlyTouchesCurrentStage(t *testing.T) {
	cp := NewCheckpoint("doc-1")
	cp.Stage = StageExtracting
	cp.FailedSet(StageExtracting).Add(7)
	cp.FailedSet(StageRendering).Add(3)
	cp.LastError = "boom"

	cp.ClearFailed()
	if cp.FailedSet(StageExtracting).Len() != 0 {
		t.Fatalf("current stage failures should be cleared")
	}
	if !cp.FailedSet(StageRendering).Has(3) {
		t.Fatalf("other stages must keep their failure record")
	}
	if cp.LastError != "" {
		t.Fatalf("last error should reset")
	}
}

func TestCheckpointJSONRoundTripKeepsClassifications(t *testing.T) {
	cp := NewCheckpoint("doc-1")
	cp.Stage = StageGrouping
	cp.Classifications[4] = PageClassification{
		PageNumber:       4,
		PageType:         PageExplanation,
		IsExplanationFor: []int{1},
		Confidence:       0.9,
	}

	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Checkpoint
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	cls, ok := restored.Classifications[4]
	if !ok {
		t.Fatalf("classification lost in round trip")
	}
	if cls.PageType != PageExplanation || !reflect.DeepEqual(cls.IsExplanationFor, []int{1}) {
		t.Fatalf("classification mangled: %+v", cls)
	}
}

func TestCloneSharesNothingWithOriginal(t *testing.T) {
	cp := NewCheckpoint("doc-1")
	cp.Stage = StageRendering
	cp.Totals[StageRendering] = 6
	cp.CompletedSet(StageRendering).Add(1)
	cp.FailedSet(StageRendering).Add(2)
	cp.RetryCounters[StageExtracting] = 1
	cp.Classifications[1] = PageClassification{PageNumber: 1, PageType: PageQuestion}

	clone := cp.Clone()

	cp.CompletedSet(StageRendering).Add(3)
	cp.FailedSet(StageRendering).Add(4)
	cp.Totals[StageRendering] = 7
	cp.Classifications[2] = PageClassification{PageNumber: 2, PageType: PageDiagram}

	if clone.CompletedSet(StageRendering).Has(3) {
		t.Fatalf("clone shares the completed set")
	}
	if clone.FailedSet(StageRendering).Has(4) {
		t.Fatalf("clone shares the failed set")
	}
	if clone.Totals[StageRendering] != 6 {
		t.Fatalf("clone shares the totals map")
	}
	if _, ok := clone.Classifications[2]; ok {
		t.Fatalf("clone shares the classifications map")
	}

	// Lazy set creation on the clone must not leak back either.
	clone.CompletedSet(StageUploading).Add(9)
	if cp.CompletedSet(StageUploading).Has(9) {
		t.Fatalf("clone writes reached the original")
	}
}

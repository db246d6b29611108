package domain

import (
	"encoding/json"
	"sort"
	"time"
)

type Stage string

const (
	StagePending     Stage = "pending"
	StageRendering   Stage = "rendering"
	StageUploading   Stage = "uploading"
	StageClassifying Stage = "classifying"
	StageGrouping    Stage = "grouping"
	StageExtracting  Stage = "extracting"
	StageDone        Stage = "done"
)

// StageOrder is the forward-only stage progression of one document.
var StageOrder = []Stage{
	StagePending,
	StageRendering,
	StageUploading,
	StageClassifying,
	StageGrouping,
	StageExtracting,
	StageDone,
}

// Next returns the stage after s, or StageDone at the end.
func (s Stage) Next() Stage {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return StageDone
}

// UnitSet records completed (or failed) unit identities for a stage.
// Units are page numbers or question numbers, so out-of-order
// completion is safe by construction. Serialized as a sorted array.
type UnitSet map[int]struct{}

func NewUnitSet(units ...int) UnitSet {
	s := make(UnitSet, len(units))
	for _, u := range units {
		s[u] = struct{}{}
	}
	return s
}

func (s UnitSet) Add(unit int)      { s[unit] = struct{}{} }
func (s UnitSet) Remove(unit int)   { delete(s, unit) }
func (s UnitSet) Has(unit int) bool { _, ok := s[unit]; return ok }
func (s UnitSet) Len() int          { return len(s) }

func (s UnitSet) Values() []int {
	out := make([]int, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Ints(out)
	return out
}

func (s UnitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *UnitSet) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewUnitSet(values...)
	return nil
}

// Checkpoint is the sole source of truth for resumability. It is
// written after every durably-completed unit of work, never held only
// in memory.
type Checkpoint struct {
	DocumentID      string                     `json:"document_id"`
	Stage           Stage                      `json:"stage"`
	Paused          bool                       `json:"paused"`
	CancelRequested bool                       `json:"cancel_requested"`
	Totals          map[Stage]int              `json:"totals"`
	Completed       map[Stage]UnitSet          `json:"completed"`
	Failed          map[Stage]UnitSet          `json:"failed"`
	RetryCounters   map[Stage]int              `json:"retry_counters"`
	Classifications map[int]PageClassification `json:"classifications"`
	LastError       string                     `json:"last_error,omitempty"`
	LastRawResponse string                     `json:"last_raw_response,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func NewCheckpoint(documentID string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		DocumentID:      documentID,
		Stage:           StagePending,
		Totals:          make(map[Stage]int),
		Completed:       make(map[Stage]UnitSet),
		Failed:          make(map[Stage]UnitSet),
		RetryCounters:   make(map[Stage]int),
		Classifications: make(map[int]PageClassification),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy sharing no maps or unit sets with the
// receiver. Snapshots read outside the manager's lock must not alias
// state that concurrent workers mutate.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.Totals = make(map[Stage]int, len(c.Totals))
	for stage, total := range c.Totals {
		out.Totals[stage] = total
	}
	out.RetryCounters = make(map[Stage]int, len(c.RetryCounters))
	for stage, count := range c.RetryCounters {
		out.RetryCounters[stage] = count
	}
	out.Completed = make(map[Stage]UnitSet, len(c.Completed))
	for stage, set := range c.Completed {
		out.Completed[stage] = NewUnitSet(set.Values()...)
	}
	out.Failed = make(map[Stage]UnitSet, len(c.Failed))
	for stage, set := range c.Failed {
		out.Failed[stage] = NewUnitSet(set.Values()...)
	}
	out.Classifications = make(map[int]PageClassification, len(c.Classifications))
	for page, cls := range c.Classifications {
		out.Classifications[page] = cls
	}
	return &out
}

func (c *Checkpoint) CompletedSet(stage Stage) UnitSet {
	if c.Completed[stage] == nil {
		c.Completed[stage] = NewUnitSet()
	}
	return c.Completed[stage]
}

func (c *Checkpoint) FailedSet(stage Stage) UnitSet {
	if c.Failed[stage] == nil {
		c.Failed[stage] = NewUnitSet()
	}
	return c.Failed[stage]
}

// Settled reports whether every unit of the stage is either completed
// or failed, i.e. there is nothing left to attempt without an explicit
// operator retry.
func (c *Checkpoint) Settled(stage Stage) bool {
	total, ok := c.Totals[stage]
	if !ok {
		return false
	}
	return c.CompletedSet(stage).Len()+c.FailedSet(stage).Len() >= total
}

// PendingUnits returns the universe units not yet completed and not
// marked failed, in ascending order. Completed units are never re-run.
func (c *Checkpoint) PendingUnits(stage Stage, universe []int) []int {
	completed := c.CompletedSet(stage)
	failed := c.FailedSet(stage)
	out := make([]int, 0, len(universe))
	for _, u := range universe {
		if completed.Has(u) || failed.Has(u) {
			continue
		}
		out = append(out, u)
	}
	sort.Ints(out)
	return out
}

// ClearFailed moves failed units of the current stage back into the
// pending set. This is the operator-triggered retry-from-failed-unit
// transition: it re-enters the same stage, never an earlier one.
func (c *Checkpoint) ClearFailed() {
	c.Failed[c.Stage] = NewUnitSet()
	c.LastError = ""
}

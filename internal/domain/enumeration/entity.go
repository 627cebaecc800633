// Package enumeration holds the records an enumeration run produces and the
// contracts for the backends that persist or publish them.
package enumeration

import (
	"time"

	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run describes one request to the engine and its outcome.
type Run struct {
	ID           common.ID  `json:"id"`
	Skeleton     string     `json:"skeleton"`
	Substituents []string   `json:"substituents"`
	Mode         string     `json:"mode"`
	N            int        `json:"n"`
	CarbonOnly   bool       `json:"carbon_only"`
	Unique       bool       `json:"unique"`
	Status       RunStatus  `json:"status"`
	VariantCount int64      `json:"variant_count"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewRun starts a run with a fresh ID.
func NewRun(skeleton string, substituents []string, mode string, n int) *Run {
	return &Run{
		ID:           common.NewID(),
		Skeleton:     skeleton,
		Substituents: append([]string(nil), substituents...),
		Mode:         mode,
		N:            n,
		Status:       RunStatusRunning,
		CreatedAt:    time.Now().UTC(),
	}
}

// Complete marks the run finished with count variants.
func (r *Run) Complete(count int64) {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.VariantCount = count
	r.FinishedAt = &now
}

// Fail marks the run failed.  A nil err leaves the run untouched.
func (r *Run) Fail(err error) {
	if err == nil {
		return
	}
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.Error = err.Error()
	r.FinishedAt = &now
}

// Validate checks the fields every backend relies on.
func (r *Run) Validate() error {
	if r == nil {
		return errors.InvalidParam("run is nil")
	}
	if err := r.ID.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}
	if r.Skeleton == "" {
		return errors.InvalidParam("run skeleton is empty")
	}
	if len(r.Substituents) == 0 {
		return errors.New(errors.ErrCodeSubstituentListEmpty, "run has no substituents")
	}
	if r.N < 0 {
		return errors.New(errors.ErrCodeSubstitutionCountInvalid, "run substitution count is negative")
	}
	return nil
}

// Variant is one composite of a run.  Index is its position in emission
// order; Sites and Assignment are the combination that produced it.
type Variant struct {
	RunID      common.ID         `json:"run_id"`
	Index      int               `json:"index"`
	SMILES     string            `json:"smiles"`
	Sites      []int             `json:"sites"`
	Assignment []int             `json:"assignment"`
	Composite  *mtypes.Composite `json:"-"`
}

//Personal.AI order the ending

package enumeration

import (
	"context"

	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

// Sink receives the variants of a finished run.  Implementations must not
// retain the slice after Write returns.
type Sink interface {
	Name() string
	Write(ctx context.Context, run *Run, variants []*Variant) error
}

// RunRepository persists runs and their variants for later lookup.
type RunRepository interface {
	Sink
	GetRun(ctx context.Context, id common.ID) (*Run, error)
	ListVariants(ctx context.Context, id common.ID, limit, offset int) ([]*Variant, error)
}

// VariantGraphRepository stores variants as property graphs.
type VariantGraphRepository interface {
	Sink
	CountVariants(ctx context.Context, runID common.ID) (int64, error)
	DeleteRun(ctx context.Context, runID common.ID) error
}

// VariantArchive stores a run's variants as one object.
type VariantArchive interface {
	Sink
	ReadVariants(ctx context.Context, runID common.ID) ([]*Variant, error)
}

//Personal.AI order the ending

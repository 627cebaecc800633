package substitution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

// Mode names the enumeration mode of a run.  It doubles as a metrics label.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeGeneral Mode = "general"
)

// Variant pairs a composite with the combination that produced it.
type Variant struct {
	Combination Combination
	Composite   *mtypes.Composite
}

// YieldFunc receives variants as they are produced.  Returning an error stops
// the enumeration and that error is returned to the caller unchanged.
type YieldFunc func(Variant) error

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers grafts on k goroutines.  k <= 1 selects the sequential path.
// In parallel mode variants reach the yield function in no particular order.
func WithWorkers(k int) Option {
	return func(e *Engine) {
		if k < 1 {
			k = 1
		}
		e.workers = k
	}
}

// WithSiteFilters restricts site eligibility, e.g. WithSiteFilters(ElementFilter(6)).
func WithSiteFilters(filters ...SiteFilter) Option {
	return func(e *Engine) {
		e.filters = append(e.filters, filters...)
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

// Engine runs site enumeration, combination generation and grafting for one
// configuration.  It holds no per-run state and is safe for concurrent use.
type Engine struct {
	workers int
	filters []SiteFilter
	logger  logging.Logger
}

// NewEngine returns an Engine with the given options applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		workers: 1,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers reports the configured parallelism.
func (e *Engine) Workers() int { return e.workers }

// Sites returns the eligible sites of s under the engine's filters.
func (e *Engine) Sites(s *mtypes.Skeleton) []int {
	return Sites(s, e.filters...)
}

// Count returns the number of variants Substitute would emit without building
// any of them.
func (e *Engine) Count(s *mtypes.Skeleton, numSubs, n int) (count uint64, overflow bool, err error) {
	if err := checkSkeleton(s); err != nil {
		return 0, false, err
	}
	if err := checkCount(n); err != nil {
		return 0, false, err
	}
	count, overflow = CountCombinations(len(e.Sites(s)), numSubs, n)
	return count, overflow, nil
}

// SubstituteOne grafts every substituent onto every eligible site, one at a
// time, and returns |sites| * |subs| composites in site-major order.
func (e *Engine) SubstituteOne(ctx context.Context, s *mtypes.Skeleton, subs []*mtypes.Substituent) ([]*mtypes.Composite, error) {
	var out []*mtypes.Composite
	err := e.EnumerateOne(ctx, s, subs, func(v Variant) error {
		out = append(out, v.Composite)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Substitute grafts substituents onto exactly n distinct sites and returns
// C(|sites|, n) * |subs|^n composites.  n greater than the number of sites
// yields an empty result; n = 0 yields one unmodified copy of s.
func (e *Engine) Substitute(ctx context.Context, s *mtypes.Skeleton, subs []*mtypes.Substituent, n int) ([]*mtypes.Composite, error) {
	var out []*mtypes.Composite
	err := e.Enumerate(ctx, s, subs, n, func(v Variant) error {
		out = append(out, v.Composite)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnumerateOne is the streaming form of SubstituteOne.
func (e *Engine) EnumerateOne(ctx context.Context, s *mtypes.Skeleton, subs []*mtypes.Substituent, yield YieldFunc) error {
	if err := checkInputs(s, subs); err != nil {
		return err
	}
	sites := e.Sites(s)
	return e.run(ctx, ModeSingle, s, subs, sites, SingleCombinations(sites, len(subs)), yield)
}

// Enumerate is the streaming form of Substitute.
func (e *Engine) Enumerate(ctx context.Context, s *mtypes.Skeleton, subs []*mtypes.Substituent, n int, yield YieldFunc) error {
	if err := checkCount(n); err != nil {
		return err
	}
	if err := checkInputs(s, subs); err != nil {
		return err
	}
	sites := e.Sites(s)
	return e.run(ctx, ModeGeneral, s, subs, sites, Combinations(sites, len(subs), n), yield)
}

func (e *Engine) run(ctx context.Context, mode Mode, s *mtypes.Skeleton, subs []*mtypes.Substituent,
	sites []int, it *Iterator, yield YieldFunc) error {
	start := time.Now()
	log := e.logger.With(logging.String(logging.FieldMode, string(mode)))
	log.Debug("enumeration started",
		logging.Int("atoms", s.NumAtoms()),
		logging.Int("sites", len(sites)),
		logging.Int("substituents", len(subs)),
		logging.Int("workers", e.workers))

	var (
		emitted uint64
		err     error
	)
	counting := func(v Variant) error {
		emitted++
		return yield(v)
	}
	if e.workers > 1 {
		err = e.runParallel(ctx, s, subs, it, counting)
	} else {
		err = e.runSequential(ctx, s, subs, it, counting)
	}

	log.Debug("enumeration finished",
		logging.Uint64("variants", emitted),
		logging.Duration("elapsed", time.Since(start)),
		logging.Bool("ok", err == nil))
	return err
}

func (e *Engine) runSequential(ctx context.Context, s *mtypes.Skeleton, subs []*mtypes.Substituent, it *Iterator, yield YieldFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		c, ok := it.Next()
		if !ok {
			return nil
		}
		if err := yield(Variant{Combination: c, Composite: Graft(s, c, subs)}); err != nil {
			return err
		}
	}
}

// runParallel feeds combinations from a single producer to e.workers graft
// goroutines.  Yield is always called from the calling goroutine.
func (e *Engine) runParallel(ctx context.Context, s *mtypes.Skeleton, subs []*mtypes.Substituent, it *Iterator, yield YieldFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan Combination, e.workers)
	results := make(chan Variant, e.workers)

	g.Go(func() error {
		defer close(jobs)
		for {
			c, ok := it.Next()
			if !ok {
				return nil
			}
			select {
			case jobs <- c:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var wg sync.WaitGroup
	wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			for c := range jobs {
				v := Variant{Combination: c, Composite: Graft(s, c, subs)}
				select {
				case results <- v:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var yieldErr error
	for v := range results {
		if yieldErr != nil {
			continue
		}
		if err := yield(v); err != nil {
			yieldErr = err
			cancel()
		}
	}

	waitErr := g.Wait()
	if yieldErr != nil {
		return yieldErr
	}
	if waitErr != nil {
		return cancelled(waitErr)
	}
	// The producer may have finished before the parent was cancelled.
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// boundary checks
// ─────────────────────────────────────────────────────────────────────────────

func checkCount(n int) error {
	if n < 0 {
		return errors.New(errors.ErrCodeSubstitutionCountInvalid, "substitution count must not be negative").
			WithDetail(fmt.Sprintf("n=%d", n))
	}
	return nil
}

func checkSkeleton(s *mtypes.Skeleton) error {
	if s == nil {
		return errors.InvalidParam("skeleton is required")
	}
	if err := s.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "invalid skeleton")
	}
	return nil
}

func checkInputs(s *mtypes.Skeleton, subs []*mtypes.Substituent) error {
	if err := checkSkeleton(s); err != nil {
		return err
	}
	for i, g := range subs {
		if g == nil {
			return errors.InvalidParam("substituent is nil").WithDetail(fmt.Sprintf("index=%d", i))
		}
		if err := g.Validate(); err != nil {
			return errors.Wrap(err, errors.CodeUnknown, fmt.Sprintf("invalid substituent %d", i))
		}
	}
	return nil
}

func cancelled(err error) error {
	return errors.Wrap(err, errors.ErrCodeEnumerationCancelled, "enumeration cancelled")
}

//Personal.AI order the ending

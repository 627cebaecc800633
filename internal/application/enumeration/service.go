// Package enumeration provides the application service that turns a
// SMILES-level substitution request into variants and hands them to the
// configured sinks.  HTTP handlers, the CLI and the Kafka worker all go
// through it.
package enumeration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/keyip-combinator/internal/config"
	domainEnum "github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/internal/domain/substitution"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/chem/smiles"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

const carbon mtypes.AtomicNumber = 6

// CacheKeyPrefix starts every result-cache key the service writes.
const CacheKeyPrefix = "result:"

// Service defines the enumeration operations exposed to the interfaces layer.
type Service interface {
	Run(ctx context.Context, req *Request) (*Result, error)
	Count(ctx context.Context, req *CountRequest) (*CountResult, error)
	Sites(ctx context.Context, req *SitesRequest) (*SitesResult, error)
	SinkNames() []string
}

// Request asks for every variant of Skeleton carrying N of Substituents.
// Mode "single" ignores N and grafts one substituent at a time.
type Request struct {
	Skeleton     string   `json:"skeleton"`
	Substituents []string `json:"substituents"`
	Mode         string   `json:"mode,omitempty"`
	N            int      `json:"n"`
	CarbonOnly   bool     `json:"carbon_only,omitempty"`
	Unique       bool     `json:"unique,omitempty"`
	Sinks        []string `json:"sinks,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID    string                `json:"run_id"`
	Mode     string                `json:"mode"`
	N        int                   `json:"n"`
	Sites    int                   `json:"sites"`
	Count    int                   `json:"count"`
	Cached   bool                  `json:"cached"`
	Sinks    []string              `json:"sinks,omitempty"`
	Variants []*domainEnum.Variant `json:"variants"`
}

type CountRequest struct {
	Skeleton        string `json:"skeleton"`
	NumSubstituents int    `json:"substituents"`
	Mode            string `json:"mode,omitempty"`
	N               int    `json:"n"`
	CarbonOnly      bool   `json:"carbon_only,omitempty"`
}

// CountResult reports the exact variant count.  Overflow means the count
// does not fit in 64 bits and Count is meaningless.
type CountResult struct {
	Sites    int    `json:"sites"`
	Count    uint64 `json:"count"`
	Overflow bool   `json:"overflow"`
}

type SitesRequest struct {
	Skeleton   string `json:"skeleton"`
	CarbonOnly bool   `json:"carbon_only,omitempty"`
}

type SiteInfo struct {
	Index             int    `json:"index"`
	Element           string `json:"element"`
	ImplicitHydrogens uint8  `json:"implicit_hydrogens"`
}

type SitesResult struct {
	Atoms int        `json:"atoms"`
	Sites []SiteInfo `json:"sites"`
}

// ResultCache is the subset of the Redis cache the service uses.
type ResultCache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (hit bool, err error)
}

// cachedRun is what the result cache stores for a request.
type cachedRun struct {
	Sites    int             `json:"sites"`
	Variants []cachedVariant `json:"variants"`
}

type cachedVariant struct {
	SMILES     string `json:"smiles"`
	Sites      []int  `json:"sites"`
	Assignment []int  `json:"assignment"`
}

type ServiceOption func(*serviceImpl)

// WithSinks registers sinks under their Name.
func WithSinks(sinks ...domainEnum.Sink) ServiceOption {
	return func(s *serviceImpl) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks[sink.Name()] = sink
				s.sinkOrder = append(s.sinkOrder, sink.Name())
			}
		}
	}
}

// WithCache enables the result cache for requests that write to no sink.
func WithCache(c ResultCache, ttl time.Duration) ServiceOption {
	return func(s *serviceImpl) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithMetrics(m *prometheus.EngineMetrics) ServiceOption {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

type serviceImpl struct {
	cfg       config.EngineConfig
	engine    *substitution.Engine
	carbon    *substitution.Engine
	sinks     map[string]domainEnum.Sink
	sinkOrder []string
	cache     ResultCache
	cacheTTL  time.Duration
	metrics   *prometheus.EngineMetrics
	logger    logging.Logger
}

// NewService creates the enumeration service.
func NewService(cfg config.EngineConfig, logger logging.Logger, opts ...ServiceOption) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	engLog := logger.Named("engine")
	s := &serviceImpl{
		cfg:     cfg,
		engine:  substitution.NewEngine(substitution.WithWorkers(cfg.Workers), substitution.WithLogger(engLog)),
		carbon:  substitution.NewEngine(substitution.WithWorkers(cfg.Workers), substitution.WithLogger(engLog), substitution.WithSiteFilters(substitution.ElementFilter(carbon))),
		sinks:   map[string]domainEnum.Sink{},
		metrics: prometheus.NewEngineMetrics(nil),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) SinkNames() []string {
	return append([]string(nil), s.sinkOrder...)
}

func (s *serviceImpl) engineFor(carbonOnly bool) *substitution.Engine {
	if carbonOnly || s.cfg.CarbonOnly {
		return s.carbon
	}
	return s.engine
}

// Run parses the request, checks the variant limit, enumerates and writes the
// variants to the requested sinks.
func (s *serviceImpl) Run(ctx context.Context, req *Request) (*Result, error) {
	mode, err := normalize(req)
	if err != nil {
		return nil, err
	}
	skel, subs, err := parseInputs(req.Skeleton, req.Substituents)
	if err != nil {
		return nil, err
	}
	sinks, err := s.selectSinks(req.Sinks)
	if err != nil {
		return nil, err
	}

	eng := s.engineFor(req.CarbonOnly)
	n := req.N
	if mode == substitution.ModeSingle {
		n = 1
	}
	if err := s.checkLimit(eng, skel, len(subs), n); err != nil {
		return nil, err
	}

	run := domainEnum.NewRun(req.Skeleton, req.Substituents, string(mode), n)
	run.CarbonOnly = req.CarbonOnly || s.cfg.CarbonOnly
	run.Unique = req.Unique || s.cfg.DropDuplicateSMILES
	log := s.logger.With(logging.String(logging.FieldRunID, run.ID.String()), logging.String(logging.FieldMode, string(mode)))

	start := time.Now()
	if s.cache != nil && len(sinks) == 0 {
		var out cachedRun
		hit, err := s.cache.GetOrSet(ctx, cacheKey(req, mode, run), &out, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
			r, _, err := s.enumerate(ctx, eng, mode, skel, subs, n, run.Unique)
			if err == nil {
				prometheus.RecordRun(s.metrics, string(mode), r.Sites, uint64(len(r.Variants)), time.Since(start), nil)
			}
			return r, err
		})
		prometheus.RecordCacheAccess(s.metrics, hit)
		if err != nil {
			return nil, s.fail(log, run, mode, start, err)
		}
		run.Complete(int64(len(out.Variants)))
		log.Info("run completed", logging.Int("variants", len(out.Variants)), logging.Bool("cached", hit))
		return s.result(run, out.Sites, hit, nil, toVariants(run, out, nil)), nil
	}

	out, composites, err := s.enumerate(ctx, eng, mode, skel, subs, n, run.Unique)
	if err != nil {
		return nil, s.fail(log, run, mode, start, err)
	}
	run.Complete(int64(len(out.Variants)))
	variants := toVariants(run, out, composites)
	prometheus.RecordRun(s.metrics, string(mode), out.Sites, uint64(len(variants)), time.Since(start), nil)

	if err := s.writeSinks(ctx, log, sinks, run, variants); err != nil {
		return nil, err
	}
	log.Info("run completed", logging.Int("variants", len(variants)), logging.Int("sinks", len(sinks)))
	return s.result(run, out.Sites, false, sinks, variants), nil
}

func (s *serviceImpl) fail(log logging.Logger, run *domainEnum.Run, mode substitution.Mode, start time.Time, err error) error {
	run.Fail(err)
	prometheus.RecordRun(s.metrics, string(mode), 0, 0, time.Since(start), err)
	log.Warn("run failed", logging.Err(err))
	return err
}

func (s *serviceImpl) result(run *domainEnum.Run, sites int, cached bool, sinks []domainEnum.Sink, variants []*domainEnum.Variant) *Result {
	res := &Result{
		RunID:    run.ID.String(),
		Mode:     run.Mode,
		N:        run.N,
		Sites:    sites,
		Count:    len(variants),
		Cached:   cached,
		Variants: variants,
	}
	for _, sink := range sinks {
		res.Sinks = append(res.Sinks, sink.Name())
	}
	return res
}

// enumerate runs the engine and writes each composite as SMILES.  With unique
// set, later byte-identical SMILES are dropped.
func (s *serviceImpl) enumerate(ctx context.Context, eng *substitution.Engine, mode substitution.Mode,
	skel *mtypes.Skeleton, subs []*mtypes.Substituent, n int, unique bool) (cachedRun, []*mtypes.Composite, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	out := cachedRun{Sites: len(eng.Sites(skel)), Variants: []cachedVariant{}}
	var composites []*mtypes.Composite
	seen := map[string]struct{}{}
	yield := func(v substitution.Variant) error {
		text, err := smiles.Write(v.Composite)
		if err != nil {
			return err
		}
		if unique {
			if _, dup := seen[text]; dup {
				return nil
			}
			seen[text] = struct{}{}
		}
		out.Variants = append(out.Variants, cachedVariant{
			SMILES:     text,
			Sites:      v.Combination.Sites,
			Assignment: v.Combination.Assignment,
		})
		composites = append(composites, v.Composite)
		return nil
	}

	var err error
	if mode == substitution.ModeSingle {
		err = eng.EnumerateOne(ctx, skel, subs, yield)
	} else {
		err = eng.Enumerate(ctx, skel, subs, n, yield)
	}
	if err != nil {
		return cachedRun{}, nil, err
	}
	return out, composites, nil
}

// writeSinks writes to every sink concurrently.  All sinks are attempted;
// the first failure is returned.
func (s *serviceImpl) writeSinks(ctx context.Context, log logging.Logger, sinks []domainEnum.Sink, run *domainEnum.Run, variants []*domainEnum.Variant) error {
	var g errgroup.Group
	for _, sink := range sinks {
		sink := sink
		g.Go(func() error {
			err := sink.Write(ctx, run, variants)
			prometheus.RecordSinkWrite(s.metrics, sink.Name(), err)
			if err != nil {
				log.Error("sink write failed", logging.String(logging.FieldSink, sink.Name()), logging.Err(err))
				return errors.Wrap(err, errors.CodeUnknown, "sink "+sink.Name()+" failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *serviceImpl) selectSinks(names []string) ([]domainEnum.Sink, error) {
	out := make([]domainEnum.Sink, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		sink, ok := s.sinks[name]
		if !ok {
			return nil, errors.New(errors.ErrCodeSinkUnknown, "sink not configured").WithDetail("sink=" + name)
		}
		out = append(out, sink)
	}
	return out, nil
}

func (s *serviceImpl) checkLimit(eng *substitution.Engine, skel *mtypes.Skeleton, numSubs, n int) error {
	count, overflow, err := eng.Count(skel, numSubs, n)
	if err != nil {
		return err
	}
	if overflow || (s.cfg.MaxVariants > 0 && count > s.cfg.MaxVariants) {
		detail := fmt.Sprintf("count=%d limit=%d", count, s.cfg.MaxVariants)
		if overflow {
			detail = fmt.Sprintf("count overflows uint64, limit=%d", s.cfg.MaxVariants)
		}
		return errors.New(errors.ErrCodeVariantLimitExceeded, "request exceeds the variant limit").WithDetail(detail)
	}
	return nil
}

// Count reports the exact number of variants without building any.
func (s *serviceImpl) Count(ctx context.Context, req *CountRequest) (*CountResult, error) {
	mode, err := parseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.NumSubstituents < 0 {
		return nil, errors.InvalidParam("substituent count must not be negative")
	}
	skel, err := smiles.ParseSkeleton(req.Skeleton)
	if err != nil {
		return nil, err
	}
	n := req.N
	if mode == substitution.ModeSingle {
		n = 1
	}
	eng := s.engineFor(req.CarbonOnly)
	count, overflow, err := eng.Count(skel, req.NumSubstituents, n)
	if err != nil {
		return nil, err
	}
	return &CountResult{Sites: len(eng.Sites(skel)), Count: count, Overflow: overflow}, nil
}

// Sites lists the eligible substitution sites of a skeleton.
func (s *serviceImpl) Sites(ctx context.Context, req *SitesRequest) (*SitesResult, error) {
	skel, err := smiles.ParseSkeleton(req.Skeleton)
	if err != nil {
		return nil, err
	}
	idx := s.engineFor(req.CarbonOnly).Sites(skel)
	res := &SitesResult{Atoms: skel.NumAtoms(), Sites: make([]SiteInfo, 0, len(idx))}
	for _, i := range idx {
		res.Sites = append(res.Sites, SiteInfo{
			Index:             i,
			Element:           smiles.Symbol(skel.AtomicNumbers[i]),
			ImplicitHydrogens: skel.ImplicitHydrogens[i],
		})
	}
	return res, nil
}

func parseMode(m string) (substitution.Mode, error) {
	switch substitution.Mode(m) {
	case "", substitution.ModeGeneral:
		return substitution.ModeGeneral, nil
	case substitution.ModeSingle:
		return substitution.ModeSingle, nil
	default:
		return "", errors.InvalidParam("unknown mode").WithDetail("mode=" + m)
	}
}

func normalize(req *Request) (substitution.Mode, error) {
	if req == nil {
		return "", errors.InvalidParam("request is required")
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		return "", err
	}
	if req.Skeleton == "" {
		return "", errors.InvalidParam("skeleton is required")
	}
	if len(req.Substituents) == 0 {
		return "", errors.New(errors.ErrCodeSubstituentListEmpty, "at least one substituent is required")
	}
	if req.N < 0 {
		return "", errors.New(errors.ErrCodeSubstitutionCountInvalid, "substitution count must not be negative").
			WithDetail(fmt.Sprintf("n=%d", req.N))
	}
	return mode, nil
}

func parseInputs(skeleton string, substituents []string) (*mtypes.Skeleton, []*mtypes.Substituent, error) {
	skel, err := smiles.ParseSkeleton(skeleton)
	if err != nil {
		return nil, nil, err
	}
	subs := make([]*mtypes.Substituent, len(substituents))
	for i, text := range substituents {
		g, err := smiles.ParseSubstituent(text)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.CodeUnknown, fmt.Sprintf("substituent %d", i)).
				WithDetail("smiles=" + text)
		}
		subs[i] = g
	}
	return skel, subs, nil
}

// cacheKey hashes every request field that changes the variant list.
func cacheKey(req *Request, mode substitution.Mode, run *domainEnum.Run) string {
	n := req.N
	if mode == substitution.ModeSingle {
		n = 1
	}
	raw, _ := json.Marshal(struct {
		Skeleton     string   `json:"s"`
		Substituents []string `json:"g"`
		Mode         string   `json:"m"`
		N            int      `json:"n"`
		CarbonOnly   bool     `json:"c"`
		Unique       bool     `json:"u"`
	}{req.Skeleton, req.Substituents, string(mode), n, run.CarbonOnly, run.Unique})
	sum := sha256.Sum256(raw)
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}

func toVariants(run *domainEnum.Run, out cachedRun, composites []*mtypes.Composite) []*domainEnum.Variant {
	variants := make([]*domainEnum.Variant, len(out.Variants))
	for i, v := range out.Variants {
		variants[i] = &domainEnum.Variant{
			RunID:      run.ID,
			Index:      i,
			SMILES:     v.SMILES,
			Sites:      v.Sites,
			Assignment: v.Assignment,
		}
		if i < len(composites) {
			variants[i].Composite = composites[i]
		}
	}
	return variants
}

//Personal.AI order the ending

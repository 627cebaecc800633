package enumeration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyip-combinator/internal/config"
	domainEnum "github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

type recordingSink struct {
	name     string
	err      error
	mu       sync.Mutex
	runs     []*domainEnum.Run
	variants [][]*domainEnum.Variant
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, run *domainEnum.Run, variants []*domainEnum.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	s.variants = append(s.variants, variants)
	return s.err
}

// memoryCache mimics the Redis cache: values round-trip through JSON.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	loads   int
}

func newMemoryCache() *memoryCache { return &memoryCache{entries: map[string][]byte{}} }

func (c *memoryCache) GetOrSet(ctx context.Context, key string, dest interface{}, _ time.Duration, loader func(ctx context.Context) (interface{}, error)) (bool, error) {
	c.mu.Lock()
	raw, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return true, json.Unmarshal(raw, dest)
	}
	v, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.entries[key] = raw
	c.loads++
	c.mu.Unlock()
	return false, json.Unmarshal(raw, dest)
}

// sharedLoadCache answers every call as a miss filled by another caller's
// load, so the loader passed in never runs.
type sharedLoadCache struct {
	value cachedRun
}

func (c *sharedLoadCache) GetOrSet(_ context.Context, _ string, dest interface{}, _ time.Duration, _ func(ctx context.Context) (interface{}, error)) (bool, error) {
	raw, err := json.Marshal(c.value)
	if err != nil {
		return false, err
	}
	return false, json.Unmarshal(raw, dest)
}

func newTestService(cfg config.EngineConfig, opts ...ServiceOption) Service {
	return NewService(cfg, nil, opts...)
}

func TestRun_Scenarios(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	ctx := context.Background()

	tests := []struct {
		name     string
		req      Request
		sites    int
		expected int
	}{
		{"propane single", Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, Mode: "single"}, 3, 6},
		{"propane n=1", Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, N: 1}, 3, 6},
		{"propane n=2", Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, N: 2}, 3, 12},
		{"propane n=4", Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, N: 4}, 3, 0},
		{"propane n=0", Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: 0}, 3, 1},
		{"m-xylene n=1", Request{Skeleton: "Cc1cccc(C)c1", Substituents: []string{"Br", "NO"}, N: 1}, 6, 12},
		{"no capacity", Request{Skeleton: "FC(F)(F)C(F)(F)F", Substituents: []string{"Br"}, N: 1}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			res, err := svc.Run(ctx, &req)
			require.NoError(t, err)
			assert.Equal(t, tt.sites, res.Sites)
			assert.Equal(t, tt.expected, res.Count)
			assert.Len(t, res.Variants, tt.expected)
			assert.False(t, res.Cached)
			for i, v := range res.Variants {
				assert.Equal(t, i, v.Index)
				assert.NotEmpty(t, v.SMILES)
				assert.Equal(t, res.RunID, v.RunID.String())
				assert.Len(t, v.Assignment, len(v.Sites))
				assert.NotNil(t, v.Composite)
			}
		})
	}
}

func TestRun_SingleModeOrder(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	res, err := svc.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, Mode: "single"})
	require.NoError(t, err)
	require.Len(t, res.Variants, 6)

	want := [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}
	for i, v := range res.Variants {
		assert.Equal(t, []int{want[i][0]}, v.Sites)
		assert.Equal(t, []int{want[i][1]}, v.Assignment)
	}
	assert.Equal(t, "single", res.Mode)
	assert.Equal(t, 1, res.N)
}

func TestRun_Parallel(t *testing.T) {
	svc := newTestService(config.EngineConfig{Workers: 4})
	res, err := svc.Run(context.Background(), &Request{Skeleton: "Cc1cccc(C)c1", Substituents: []string{"Br", "NO"}, N: 2})
	require.NoError(t, err)
	// C(6,2) * 2^2
	assert.Equal(t, 60, res.Count)

	seen := map[string]bool{}
	for _, v := range res.Variants {
		key, _ := json.Marshal([]interface{}{v.Sites, v.Assignment})
		assert.False(t, seen[string(key)], "combination emitted twice")
		seen[string(key)] = true
	}
}

func TestRun_UniqueDropsIdenticalSMILES(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	req := &Request{Skeleton: "CCC", Substituents: []string{"Br", "Br"}, N: 1}

	all, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 6, all.Count)

	req.Unique = true
	uniq, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, uniq.Count)
	for i, v := range uniq.Variants {
		assert.Equal(t, i, v.Index)
	}

	cfgUniq := newTestService(config.EngineConfig{DropDuplicateSMILES: true})
	res, err := cfgUniq.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br", "Br"}, N: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestRun_CarbonOnly(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	res, err := svc.Run(context.Background(), &Request{Skeleton: "CCO", Substituents: []string{"Br"}, N: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sites)

	res, err = svc.Run(context.Background(), &Request{Skeleton: "CCO", Substituents: []string{"Br"}, N: 1, CarbonOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sites)
	assert.Equal(t, 2, res.Count)
}

func TestRun_Validation(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  *Request
		code errors.ErrorCode
	}{
		{"nil request", nil, errors.CodeInvalidParam},
		{"empty skeleton", &Request{Substituents: []string{"Br"}}, errors.CodeInvalidParam},
		{"no substituents", &Request{Skeleton: "CCC"}, errors.ErrCodeSubstituentListEmpty},
		{"negative n", &Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: -1}, errors.ErrCodeSubstitutionCountInvalid},
		{"unknown mode", &Request{Skeleton: "CCC", Substituents: []string{"Br"}, Mode: "pairs"}, errors.CodeInvalidParam},
		{"unsupported bond", &Request{Skeleton: "C~C", Substituents: []string{"Br"}, N: 1}, errors.ErrCodeUnsupportedBondType},
		{"bad substituent", &Request{Skeleton: "CCC", Substituents: []string{"Br", "C("}, N: 1}, errors.ErrCodeMoleculeInvalidSMILES},
		{"unknown sink", &Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: 1, Sinks: []string{"kafka"}}, errors.ErrCodeSinkUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRun_VariantLimit(t *testing.T) {
	svc := newTestService(config.EngineConfig{MaxVariants: 5})
	_, err := svc.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, N: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeVariantLimitExceeded))

	res, err := svc.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestRun_CancelledContext(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, &Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEnumerationCancelled))
}

func TestRun_WritesSinks(t *testing.T) {
	kafka := &recordingSink{name: config.SinkKafka}
	pg := &recordingSink{name: config.SinkPostgres}
	svc := newTestService(config.EngineConfig{}, WithSinks(kafka, pg))
	assert.Equal(t, []string{config.SinkKafka, config.SinkPostgres}, svc.SinkNames())

	res, err := svc.Run(context.Background(), &Request{
		Skeleton:     "CCC",
		Substituents: []string{"Br", "NO"},
		N:            2,
		Sinks:        []string{config.SinkPostgres, config.SinkKafka, config.SinkPostgres},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{config.SinkKafka, config.SinkPostgres}, res.Sinks)

	for _, sink := range []*recordingSink{kafka, pg} {
		require.Len(t, sink.runs, 1)
		run := sink.runs[0]
		assert.Equal(t, res.RunID, run.ID.String())
		assert.Equal(t, domainEnum.RunStatusCompleted, run.Status)
		assert.Equal(t, int64(12), run.VariantCount)
		assert.Len(t, sink.variants[0], 12)
	}
}

func TestRun_SinkFailure(t *testing.T) {
	ok := &recordingSink{name: config.SinkKafka}
	bad := &recordingSink{name: config.SinkNeo4j, err: errors.New(errors.ErrCodeSinkWriteFailed, "neo4j down")}
	svc := newTestService(config.EngineConfig{}, WithSinks(ok, bad))

	_, err := svc.Run(context.Background(), &Request{
		Skeleton: "CCC", Substituents: []string{"Br"}, N: 1,
		Sinks: []string{config.SinkKafka, config.SinkNeo4j},
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSinkWriteFailed))
	assert.Len(t, ok.runs, 1, "healthy sinks are still written")
}

func TestRun_Cache(t *testing.T) {
	cache := newMemoryCache()
	sink := &recordingSink{name: config.SinkKafka}
	svc := newTestService(config.EngineConfig{}, WithCache(cache, time.Minute), WithSinks(sink))
	req := &Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, N: 2}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, cache.loads)
	assert.NotEqual(t, first.RunID, second.RunID)
	require.Len(t, second.Variants, 12)
	for i := range first.Variants {
		assert.Equal(t, first.Variants[i].SMILES, second.Variants[i].SMILES)
		assert.Equal(t, first.Variants[i].Sites, second.Variants[i].Sites)
		assert.Equal(t, second.RunID, second.Variants[i].RunID.String())
	}

	// A different option is a different key.
	req.Unique = true
	third, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)

	// Writing to a sink always enumerates.
	req.Sinks = []string{config.SinkKafka}
	fourth, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, fourth.Cached)
	assert.Equal(t, 2, cache.loads)
	assert.Len(t, sink.runs, 1)
}

func TestRun_SharedCacheLoadIsAMiss(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "shared"}, nil)
	require.NoError(t, err)
	cache := &sharedLoadCache{value: cachedRun{
		Sites:    3,
		Variants: []cachedVariant{{SMILES: "BrCCC", Sites: []int{0}, Assignment: []int{0}}},
	}}
	svc := newTestService(config.EngineConfig{}, WithCache(cache, time.Minute), WithMetrics(prometheus.NewEngineMetrics(c)))

	res, err := svc.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: 1})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, "BrCCC", res.Variants[0].SMILES)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	out := rec.Body.String()
	assert.Contains(t, out, "shared_cache_misses_total 1")
	assert.NotContains(t, out, "shared_cache_hits_total 1")
}

func TestRun_RecordsMetrics(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "svc"}, nil)
	require.NoError(t, err)
	sink := &recordingSink{name: config.SinkMinIO}
	svc := newTestService(config.EngineConfig{}, WithMetrics(prometheus.NewEngineMetrics(c)), WithSinks(sink))

	_, err = svc.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br", "NO"}, N: 1, Sinks: []string{config.SinkMinIO}})
	require.NoError(t, err)
	_, err = svc.Run(context.Background(), &Request{Skeleton: "CCC", Substituents: []string{"Br"}, N: -1})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	out := rec.Body.String()
	assert.Contains(t, out, `svc_variants_total{mode="general"} 6`)
	assert.Contains(t, out, `svc_runs_total{mode="general",status="success"} 1`)
	assert.Contains(t, out, `svc_sink_writes_total{sink="minio",status="success"} 1`)
}

func TestCount(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	ctx := context.Background()

	res, err := svc.Count(ctx, &CountRequest{Skeleton: "CCC", NumSubstituents: 2, N: 2})
	require.NoError(t, err)
	assert.Equal(t, &CountResult{Sites: 3, Count: 12}, res)

	res, err = svc.Count(ctx, &CountRequest{Skeleton: "CCC", NumSubstituents: 2, Mode: "single", N: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), res.Count)

	res, err = svc.Count(ctx, &CountRequest{Skeleton: "CCO", NumSubstituents: 1, N: 1, CarbonOnly: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Count)

	_, err = svc.Count(ctx, &CountRequest{Skeleton: "CCC", NumSubstituents: 2, N: -1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSubstitutionCountInvalid))

	_, err = svc.Count(ctx, &CountRequest{Skeleton: "CCC", NumSubstituents: -2, N: 1})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestSites(t *testing.T) {
	svc := newTestService(config.EngineConfig{})
	res, err := svc.Sites(context.Background(), &SitesRequest{Skeleton: "CC(=O)O"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Atoms)
	assert.Equal(t, []SiteInfo{
		{Index: 0, Element: "C", ImplicitHydrogens: 3},
		{Index: 3, Element: "O", ImplicitHydrogens: 1},
	}, res.Sites)

	res, err = svc.Sites(context.Background(), &SitesRequest{Skeleton: "CC(=O)O", CarbonOnly: true})
	require.NoError(t, err)
	assert.Len(t, res.Sites, 1)

	_, err = svc.Sites(context.Background(), &SitesRequest{Skeleton: "C1CC"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidSMILES))
}

//Personal.AI order the ending

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/config"
	httpserver "github.com/turtacn/keyip-combinator/internal/interfaces/http"
	"github.com/turtacn/keyip-combinator/internal/interfaces/http/handlers"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "://bad"} {
		_, err := NewClient(u)
		require.Error(t, err, u)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), u)
	}

	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Same(t, c.Substitutions(), c.Substitutions())
}

func TestOptions(t *testing.T) {
	hc := &http.Client{}
	c, err := NewClient("https://api.example.com",
		WithHTTPClient(hc),
		WithAPIKey("k"),
		WithRetryMax(-1),
		WithRetryWait(time.Second, time.Millisecond),
		WithUserAgent(""),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, "k", c.apiKey)
	assert.Equal(t, 3, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax)
	assert.Equal(t, "combinator-go-sdk/"+Version, c.userAgent)
}

func TestWithTimeout_CopiesHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	c, err := NewClient("https://api.example.com", WithHTTPClient(hc), WithTimeout(time.Second), WithTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, hc.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

func TestWithHeader_SentButCannotOverride(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"a", "b"}, r.Header.Values("X-Tenant"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sinks":["kafka"]}`))
	}, WithHeader("X-Tenant", "a"), WithHeader("x-tenant", "b"), WithHeader("Accept", "text/plain"))

	sinks, err := c.Substitutions().Sinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka"}, sinks)
}

func TestSubstitute_SendsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/substitutions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var req SubstitutionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CC", req.Skeleton)
		assert.Equal(t, []string{"Br"}, req.Substituents)

		_, _ = io.WriteString(w, `{"run_id":"r1","mode":"general","n":1,"sites":2,"count":1,
			"variants":[{"run_id":"r1","index":0,"smiles":"CCBr","sites":[1],"assignment":[0]}]}`)
	}, WithAPIKey("secret"))

	res, err := c.Substitutions().Substitute(context.Background(), &SubstitutionRequest{
		Skeleton: "CC", Substituents: []string{"Br"}, N: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.RunID)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, "CCBr", res.Variants[0].SMILES)
	assert.Equal(t, []int{1}, res.Variants[0].Sites)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"MOL_001","message":"invalid SMILES format","detail":"\"C1\" at offset 2"}`)
	})

	_, err := c.Substitutions().Sites(context.Background(), &SitesRequest{Skeleton: "C1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBadRequest())
	assert.Equal(t, "MOL_001", apiErr.Code)
	assert.Equal(t, `"C1" at offset 2`, apiErr.Detail)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"code":"SINK_002","message":"variant sink write failed"}`)
			return
		}
		_, _ = io.WriteString(w, `{"sites":3,"count":9,"overflow":false}`)
	})

	res, err := c.Substitutions().Count(context.Background(), &CountRequest{Skeleton: "CCC", NumSubstituents: 3, N: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), res.Count)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}, WithRetryMax(2))

	_, err := c.Substitutions().Sinks(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitedHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"code":"COMMON_007","message":"rate limit exceeded, retry later"}`)
			return
		}
		_, _ = io.WriteString(w, `{"sinks":["kafka"]}`)
	})

	sinks, err := c.Substitutions().Sinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka"}, sinks)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryWait(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Substitutions().Sinks(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewBackOff(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	b := c.newBackOff()
	for _, base := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond} {
		got := b.NextBackOff()
		assert.GreaterOrEqual(t, got, base*3/4)
		assert.LessOrEqual(t, got, base*5/4)
	}

	b.after(0)
	assert.Zero(t, b.NextBackOff(), "Retry-After replaces one delay")
	assert.GreaterOrEqual(t, b.NextBackOff(), 225*time.Millisecond)
}

func TestRateLimitedWithoutRetryAfterIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Substitutions().Sinks(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, int32(1), calls.Load())
}

func TestAgainstServer(t *testing.T) {
	svc := enumeration.NewService(config.EngineConfig{Workers: 2}, nil)
	server := httptest.NewServer(httpserver.NewRouter(httpserver.RouterConfig{
		SubstitutionHandler: handlers.NewSubstitutionHandler(svc, nil, handlers.DefaultMaxBodyBytes),
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithRetryMax(0))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := c.Substitutions().Substitute(ctx, &SubstitutionRequest{
		Skeleton: "CCC", Substituents: []string{"Br"}, Mode: "single",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sites)
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.Variants, 3)

	cnt, err := c.Substitutions().Count(ctx, &CountRequest{Skeleton: "CCC", NumSubstituents: 2, N: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), cnt.Count)

	sites, err := c.Substitutions().Sites(ctx, &SitesRequest{Skeleton: "CO"})
	require.NoError(t, err)
	assert.Len(t, sites.Sites, 2)

	sinks, err := c.Substitutions().Sinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, sinks)

	_, err = c.Substitutions().Substitute(ctx, &SubstitutionRequest{Skeleton: "C", Substituents: []string{"Br"}, N: -1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "SUB_001", apiErr.Code)
}

//Personal.AI order the ending

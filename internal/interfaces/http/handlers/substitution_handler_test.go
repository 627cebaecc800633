package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	domainEnum "github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Run(ctx context.Context, req *enumeration.Request) (*enumeration.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enumeration.Result), args.Error(1)
}

func (m *mockService) Count(ctx context.Context, req *enumeration.CountRequest) (*enumeration.CountResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enumeration.CountResult), args.Error(1)
}

func (m *mockService) Sites(ctx context.Context, req *enumeration.SitesRequest) (*enumeration.SitesResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enumeration.SitesResult), args.Error(1)
}

func (m *mockService) SinkNames() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func newTestRouter(svc enumeration.Service, maxBody int64) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", NewSubstitutionHandler(svc, nil, maxBody).RegisterRoutes)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubstitute_Success(t *testing.T) {
	svc := new(mockService)
	want := &enumeration.Request{Skeleton: "CCC", Substituents: []string{"Br"}, Mode: "single"}
	svc.On("Run", mock.Anything, want).Return(&enumeration.Result{
		RunID: "r1", Mode: "single", N: 1, Sites: 3, Count: 1,
		Variants: []*domainEnum.Variant{{Index: 0, SMILES: "BrCCC", Sites: []int{0}, Assignment: []int{0}}},
	}, nil)

	w := do(newTestRouter(svc, 0), http.MethodPost, "/api/v1/substitutions",
		`{"skeleton":"CCC","substituents":["Br"],"mode":"single"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	var res enumeration.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "r1", res.RunID)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, "BrCCC", res.Variants[0].SMILES)
	svc.AssertExpectations(t)
}

func TestSubstitute_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"invalid smiles", errors.New(errors.ErrCodeMoleculeInvalidSMILES, "unclosed ring 1").WithDetail("pos=3"), http.StatusBadRequest, "MOL_001", "unclosed ring 1"},
		{"negative n", errors.New(errors.ErrCodeSubstitutionCountInvalid, "n must not be negative"), http.StatusBadRequest, "SUB_001", "n must not be negative"},
		{"limit", errors.New(errors.ErrCodeVariantLimitExceeded, "too many"), http.StatusUnprocessableEntity, "SUB_002", "too many"},
		{"sink", errors.New(errors.ErrCodeSinkWriteFailed, "kafka: broker gone"), http.StatusBadGateway, "SINK_002", "variant sink write failed"},
		{"plain", assert.AnError, http.StatusInternalServerError, "COMMON_001", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Run", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := do(newTestRouter(svc, 0), http.MethodPost, "/api/v1/substitutions", `{"skeleton":"C","substituents":["Br"],"n":1}`)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.msg, resp.Message)
		})
	}
}

func TestSubstitute_DetailOnClientErrors(t *testing.T) {
	svc := new(mockService)
	svc.On("Run", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "unclosed ring 1").WithDetail("pos=3"))

	w := do(newTestRouter(svc, 0), http.MethodPost, "/api/v1/substitutions", `{"skeleton":"C1CC","substituents":["Br"]}`)
	assert.Equal(t, "pos=3", decodeError(t, w).Detail)
}

func TestSubstitute_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"skeleton":`},
		{"unknown field", `{"skeleton":"C","bogus":1}`},
		{"trailing object", `{"skeleton":"C"}{"skeleton":"C"}`},
		{"too large", `{"skeleton":"` + strings.Repeat("C", 200) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			w := do(newTestRouter(svc, 64), http.MethodPost, "/api/v1/substitutions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "COMMON_002", decodeError(t, w).Code)
			svc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestCount(t *testing.T) {
	svc := new(mockService)
	svc.On("Count", mock.Anything, &enumeration.CountRequest{Skeleton: "CCC", NumSubstituents: 2, N: 2}).
		Return(&enumeration.CountResult{Sites: 3, Count: 12}, nil)

	w := do(newTestRouter(svc, 0), http.MethodPost, "/api/v1/substitutions/count", `{"skeleton":"CCC","substituents":2,"n":2}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sites":3,"count":12,"overflow":false}`, w.Body.String())
}

func TestSites(t *testing.T) {
	svc := new(mockService)
	svc.On("Sites", mock.Anything, &enumeration.SitesRequest{Skeleton: "CO", CarbonOnly: true}).
		Return(&enumeration.SitesResult{Atoms: 2, Sites: []enumeration.SiteInfo{{Index: 0, Element: "C", ImplicitHydrogens: 3}}}, nil)

	w := do(newTestRouter(svc, 0), http.MethodPost, "/api/v1/sites", `{"skeleton":"CO","carbon_only":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"atoms":2,"sites":[{"index":0,"element":"C","implicit_hydrogens":3}]}`, w.Body.String())
}

func TestSites_Error(t *testing.T) {
	svc := new(mockService)
	svc.On("Sites", mock.Anything, mock.Anything).Return(nil, errors.New(errors.ErrCodeGraphEmpty, "graph has no atoms"))

	w := do(newTestRouter(svc, 0), http.MethodPost, "/api/v1/sites", `{"skeleton":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "GRAPH_001", decodeError(t, w).Code)
}

func TestSinks(t *testing.T) {
	svc := new(mockService)
	svc.On("SinkNames").Return([]string{"kafka", "postgres"}).Once()
	svc.On("SinkNames").Return(nil).Once()
	h := newTestRouter(svc, 0)

	w := do(h, http.MethodGet, "/api/v1/sinks", "")
	assert.JSONEq(t, `{"sinks":["kafka","postgres"]}`, w.Body.String())

	w = do(h, http.MethodGet, "/api/v1/sinks", "")
	assert.JSONEq(t, `{"sinks":[]}`, w.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	w := do(newTestRouter(new(mockService), 0), http.MethodGet, "/api/v1/substitutions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

//Personal.AI order the ending

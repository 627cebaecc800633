package client

import (
	"context"
)

// SubstitutionRequest asks for every variant of Skeleton carrying N of
// Substituents.  Mode "single" ignores N.
type SubstitutionRequest struct {
	Skeleton     string   `json:"skeleton"`
	Substituents []string `json:"substituents"`
	Mode         string   `json:"mode,omitempty"`
	N            int      `json:"n"`
	CarbonOnly   bool     `json:"carbon_only,omitempty"`
	Unique       bool     `json:"unique,omitempty"`
	Sinks        []string `json:"sinks,omitempty"`
}

// Variant is one substituted molecule.  Assignment[i] is the substituent
// index grafted at Sites[i].
type Variant struct {
	RunID      string `json:"run_id"`
	Index      int    `json:"index"`
	SMILES     string `json:"smiles"`
	Sites      []int  `json:"sites"`
	Assignment []int  `json:"assignment"`
}

type SubstitutionResult struct {
	RunID    string     `json:"run_id"`
	Mode     string     `json:"mode"`
	N        int        `json:"n"`
	Sites    int        `json:"sites"`
	Count    int        `json:"count"`
	Cached   bool       `json:"cached"`
	Sinks    []string   `json:"sinks,omitempty"`
	Variants []*Variant `json:"variants"`
}

type CountRequest struct {
	Skeleton        string `json:"skeleton"`
	NumSubstituents int    `json:"substituents"`
	Mode            string `json:"mode,omitempty"`
	N               int    `json:"n"`
	CarbonOnly      bool   `json:"carbon_only,omitempty"`
}

// CountResult is the exact variant count.  Count is meaningless when
// Overflow is set.
type CountResult struct {
	Sites    int    `json:"sites"`
	Count    uint64 `json:"count"`
	Overflow bool   `json:"overflow"`
}

type SitesRequest struct {
	Skeleton   string `json:"skeleton"`
	CarbonOnly bool   `json:"carbon_only,omitempty"`
}

type Site struct {
	Index             int    `json:"index"`
	Element           string `json:"element"`
	ImplicitHydrogens int    `json:"implicit_hydrogens"`
}

type SitesResult struct {
	Atoms int    `json:"atoms"`
	Sites []Site `json:"sites"`
}

// SubstitutionsClient calls the /api/v1 substitution endpoints.
type SubstitutionsClient struct {
	client *Client
}

// Substitute enumerates the variants of req.
func (s *SubstitutionsClient) Substitute(ctx context.Context, req *SubstitutionRequest) (*SubstitutionResult, error) {
	var res SubstitutionResult
	if err := s.client.post(ctx, "/api/v1/substitutions", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Count returns how many variants req would produce without producing them.
func (s *SubstitutionsClient) Count(ctx context.Context, req *CountRequest) (*CountResult, error) {
	var res CountResult
	if err := s.client.post(ctx, "/api/v1/substitutions/count", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *SubstitutionsClient) Sites(ctx context.Context, req *SitesRequest) (*SitesResult, error) {
	var res SitesResult
	if err := s.client.post(ctx, "/api/v1/sites", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Sinks lists the sink names the server accepts.
func (s *SubstitutionsClient) Sinks(ctx context.Context) ([]string, error) {
	var res struct {
		Sinks []string `json:"sinks"`
	}
	if err := s.client.get(ctx, "/api/v1/sinks", &res); err != nil {
		return nil, err
	}
	return res.Sinks, nil
}

//Personal.AI order the ending

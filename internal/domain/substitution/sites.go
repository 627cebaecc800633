// Package substitution implements the substitution-combinatorics engine: it
// finds the substitutable atoms of a skeleton graph, enumerates every
// (site-subset, substituent-assignment) pair, and grafts substituent graphs
// onto copies of the skeleton.
//
// The engine works on molecule graphs only.  Reading and writing molecular
// notations is the job of the chem/smiles package.
package substitution

import (
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

// SiteFilter narrows site eligibility beyond the capacity rule.  It is called
// only for atoms whose capacity is already positive.
type SiteFilter func(s *mtypes.Skeleton, atom int) bool

// ElementFilter admits only atoms of the listed elements.  ElementFilter(6)
// restricts substitution to carbon.
func ElementFilter(elements ...mtypes.AtomicNumber) SiteFilter {
	allowed := make(map[mtypes.AtomicNumber]struct{}, len(elements))
	for _, z := range elements {
		allowed[z] = struct{}{}
	}
	return func(s *mtypes.Skeleton, atom int) bool {
		_, ok := allowed[s.AtomicNumbers[atom]]
		return ok
	}
}

// Sites returns the ascending indices of atoms with capacity > 0 that pass
// every filter.  A skeleton without eligible atoms yields an empty slice.
func Sites(s *mtypes.Skeleton, filters ...SiteFilter) []int {
	sites := make([]int, 0, len(s.ImplicitHydrogens))
	for atom, h := range s.ImplicitHydrogens {
		if h == 0 {
			continue
		}
		if admitted(s, atom, filters) {
			sites = append(sites, atom)
		}
	}
	return sites
}

func admitted(s *mtypes.Skeleton, atom int, filters []SiteFilter) bool {
	for _, f := range filters {
		if !f(s, atom) {
			return false
		}
	}
	return true
}

//Personal.AI order the ending

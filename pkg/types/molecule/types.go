// Package molecule defines the atom/bond graph types shared by the
// substitution engine, the SMILES collaborators and every sink.  Only plain
// data and structural validation live here, so the package is safe to import
// from any layer without creating circular dependencies.
package molecule

import (
	"fmt"

	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// MaxAtomicNumber is the largest atomic number accepted in a graph (Og).
const MaxAtomicNumber = 118

// AtomicNumber identifies an element by its proton count.
type AtomicNumber uint8

// ─────────────────────────────────────────────────────────────────────────────
// BondOrder: ordinary bond multiplicity
// ─────────────────────────────────────────────────────────────────────────────

// BondOrder is the multiplicity of an ordinary (non-aromatic) bond.
type BondOrder uint8

const (
	BondSingle    BondOrder = 1
	BondDouble    BondOrder = 2
	BondTriple    BondOrder = 3
	BondQuadruple BondOrder = 4
	BondQuintuple BondOrder = 5
	BondHextuple  BondOrder = 6
)

const (
	minBondOrder = BondSingle
	maxBondOrder = BondHextuple
)

// IsValid reports whether o lies in the single..hextuple range.
func (o BondOrder) IsValid() bool {
	return o >= minBondOrder && o <= maxBondOrder
}

// Bond is an ordinary bond between two atoms of the same graph.  The pair is
// unordered.
type Bond struct {
	Atom1 int       `json:"atom1"`
	Atom2 int       `json:"atom2"`
	Order BondOrder `json:"order"`
}

// AromaticBond tags an atom pair as aromatic.  Aromaticity carries no order.
type AromaticBond struct {
	Atom1 int `json:"atom1"`
	Atom2 int `json:"atom2"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Graphs
// ─────────────────────────────────────────────────────────────────────────────

// Skeleton is the base graph substituents are grafted onto.  ImplicitHydrogens
// is the per-atom substitution capacity and runs parallel to AtomicNumbers.
type Skeleton struct {
	AtomicNumbers     []AtomicNumber
	ImplicitHydrogens []uint8
	Bonds             []Bond
	AromaticBonds     []AromaticBond
}

// NumAtoms returns the number of heavy atoms in the skeleton.
func (s *Skeleton) NumAtoms() int {
	return len(s.AtomicNumbers)
}

// Validate checks the structural invariants of the skeleton.
func (s *Skeleton) Validate() error {
	if len(s.ImplicitHydrogens) != len(s.AtomicNumbers) {
		return errors.New(errors.ErrCodeGraphCapacityMismatch, "skeleton capacity counter").
			WithDetail(fmt.Sprintf("atoms=%d capacities=%d", len(s.AtomicNumbers), len(s.ImplicitHydrogens)))
	}
	return validateGraph(s.AtomicNumbers, s.Bonds, s.AromaticBonds)
}

// Substituent is a fragment grafted by its root atom, index 0.  A substituent
// never carries aromatic bonds.  ImplicitHydrogens is optional; when present
// it is carried into the composite so further grafting stays possible.
type Substituent struct {
	AtomicNumbers     []AtomicNumber
	Bonds             []Bond
	ImplicitHydrogens []uint8
}

// NumAtoms returns the number of heavy atoms in the fragment.
func (g *Substituent) NumAtoms() int {
	return len(g.AtomicNumbers)
}

// Validate checks the structural invariants of the substituent.
func (g *Substituent) Validate() error {
	if len(g.AtomicNumbers) == 0 {
		return errors.New(errors.ErrCodeGraphEmpty, "substituent has no root atom")
	}
	if g.ImplicitHydrogens != nil && len(g.ImplicitHydrogens) != len(g.AtomicNumbers) {
		return errors.New(errors.ErrCodeGraphCapacityMismatch, "substituent capacity counter").
			WithDetail(fmt.Sprintf("atoms=%d capacities=%d", len(g.AtomicNumbers), len(g.ImplicitHydrogens)))
	}
	return validateGraph(g.AtomicNumbers, g.Bonds, nil)
}

// Composite is one substituted molecule produced by grafting.  It is never
// modified after the engine returns it.
type Composite struct {
	AtomicNumbers     []AtomicNumber
	Bonds             []Bond
	AromaticBonds     []AromaticBond
	ImplicitHydrogens []uint8
}

// NumAtoms returns the number of heavy atoms in the composite.
func (c *Composite) NumAtoms() int {
	return len(c.AtomicNumbers)
}

// Validate checks the structural invariants of the composite.
func (c *Composite) Validate() error {
	if c.ImplicitHydrogens != nil && len(c.ImplicitHydrogens) != len(c.AtomicNumbers) {
		return errors.New(errors.ErrCodeGraphCapacityMismatch, "composite capacity counter")
	}
	return validateGraph(c.AtomicNumbers, c.Bonds, c.AromaticBonds)
}

// AsSkeleton returns a skeleton view of the composite sharing no memory with
// it, so a composite can seed a further round of substitution.
func (c *Composite) AsSkeleton() *Skeleton {
	h := make([]uint8, len(c.AtomicNumbers))
	copy(h, c.ImplicitHydrogens)
	return &Skeleton{
		AtomicNumbers:     append([]AtomicNumber(nil), c.AtomicNumbers...),
		ImplicitHydrogens: h,
		Bonds:             append([]Bond(nil), c.Bonds...),
		AromaticBonds:     append([]AromaticBond(nil), c.AromaticBonds...),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// validation helpers
// ─────────────────────────────────────────────────────────────────────────────

type pair struct{ lo, hi int }

func newPair(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

func validateGraph(atoms []AtomicNumber, bonds []Bond, aromatic []AromaticBond) error {
	n := len(atoms)
	for i, z := range atoms {
		if z == 0 || z > MaxAtomicNumber {
			return errors.New(errors.ErrCodeGraphAtomicNumberInvalid, "atomic number out of range").
				WithDetail(fmt.Sprintf("atom=%d z=%d", i, z))
		}
	}

	seen := make(map[pair]struct{}, len(bonds)+len(aromatic))
	check := func(kind string, i, a, b int) error {
		if a < 0 || a >= n || b < 0 || b >= n || a == b {
			return errors.New(errors.ErrCodeGraphBondIndexInvalid, kind+" references an invalid atom").
				WithDetail(fmt.Sprintf("index=%d atoms=(%d,%d) size=%d", i, a, b, n))
		}
		p := newPair(a, b)
		if _, dup := seen[p]; dup {
			return errors.New(errors.ErrCodeGraphDuplicateBond, kind+" pair already bonded").
				WithDetail(fmt.Sprintf("index=%d atoms=(%d,%d)", i, a, b))
		}
		seen[p] = struct{}{}
		return nil
	}

	for i, b := range bonds {
		if !b.Order.IsValid() {
			return errors.New(errors.ErrCodeGraphBondOrderInvalid, "bond order out of range").
				WithDetail(fmt.Sprintf("index=%d order=%d", i, b.Order))
		}
		if err := check("bond", i, b.Atom1, b.Atom2); err != nil {
			return err
		}
	}
	for i, b := range aromatic {
		if err := check("aromatic bond", i, b.Atom1, b.Atom2); err != nil {
			return err
		}
	}
	return nil
}

//Personal.AI order the ending

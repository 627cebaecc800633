package substitution

import (
	"fmt"

	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

// Graft builds the composite for one combination.  Skeleton atoms keep their
// indices; each chosen substituent is appended in site order and its root is
// joined to the site by a single bond.  Neither s nor subs is modified.
//
// Graft panics when c violates the generator contract: sites out of range,
// repeated or unordered, an assignment of the wrong length or out of range,
// or a site without remaining capacity.
func Graft(s *mtypes.Skeleton, c Combination, subs []*mtypes.Substituent) *mtypes.Composite {
	if len(c.Sites) != len(c.Assignment) {
		panic(fmt.Sprintf("substitution: %d sites but %d assignments", len(c.Sites), len(c.Assignment)))
	}

	base := s.NumAtoms()
	numAtoms, numBonds := base, len(s.Bonds)
	offsets := make([]int, len(c.Sites))
	prev := -1
	for i, site := range c.Sites {
		if site < 0 || site >= base {
			panic(fmt.Sprintf("substitution: site %d outside skeleton of %d atoms", site, base))
		}
		if site <= prev {
			panic(fmt.Sprintf("substitution: sites not strictly ascending at %d", site))
		}
		if s.ImplicitHydrogens[site] == 0 {
			panic(fmt.Sprintf("substitution: site %d has no remaining capacity", site))
		}
		g := c.Assignment[i]
		if g < 0 || g >= len(subs) {
			panic(fmt.Sprintf("substitution: assignment %d outside %d substituents", g, len(subs)))
		}
		prev = site
		offsets[i] = numAtoms
		numAtoms += subs[g].NumAtoms()
		numBonds += len(subs[g].Bonds) + 1
	}

	out := &mtypes.Composite{
		AtomicNumbers:     make([]mtypes.AtomicNumber, base, numAtoms),
		Bonds:             make([]mtypes.Bond, len(s.Bonds), numBonds),
		AromaticBonds:     make([]mtypes.AromaticBond, len(s.AromaticBonds)),
		ImplicitHydrogens: make([]uint8, base, numAtoms),
	}
	copy(out.AtomicNumbers, s.AtomicNumbers)
	copy(out.Bonds, s.Bonds)
	copy(out.AromaticBonds, s.AromaticBonds)
	copy(out.ImplicitHydrogens, s.ImplicitHydrogens)

	for i, site := range c.Sites {
		sub := subs[c.Assignment[i]]
		off := offsets[i]

		out.AtomicNumbers = append(out.AtomicNumbers, sub.AtomicNumbers...)
		out.ImplicitHydrogens = appendSubstituentCapacity(out.ImplicitHydrogens, sub)
		for _, b := range sub.Bonds {
			out.Bonds = append(out.Bonds, mtypes.Bond{
				Atom1: b.Atom1 + off,
				Atom2: b.Atom2 + off,
				Order: b.Order,
			})
		}
		out.Bonds = append(out.Bonds, mtypes.Bond{Atom1: site, Atom2: off, Order: mtypes.BondSingle})
		out.ImplicitHydrogens[site]--
	}
	return out
}

// appendSubstituentCapacity carries the fragment's own counter when it has
// one, with the root losing the hydrogen the attachment replaced.
func appendSubstituentCapacity(dst []uint8, sub *mtypes.Substituent) []uint8 {
	start := len(dst)
	if sub.ImplicitHydrogens == nil {
		return append(dst, make([]uint8, sub.NumAtoms())...)
	}
	dst = append(dst, sub.ImplicitHydrogens...)
	if dst[start] > 0 {
		dst[start]--
	}
	return dst
}

//Personal.AI order the ending

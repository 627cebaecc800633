package substitution

import (
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

// propane is CCC with three hydrogen-bearing carbons.
func propane() *mtypes.Skeleton {
	return &mtypes.Skeleton{
		AtomicNumbers:     []mtypes.AtomicNumber{6, 6, 6},
		ImplicitHydrogens: []uint8{3, 2, 3},
		Bonds: []mtypes.Bond{
			{Atom1: 0, Atom2: 1, Order: mtypes.BondSingle},
			{Atom1: 1, Atom2: 2, Order: mtypes.BondSingle},
		},
	}
}

// metaXylene is Cc1cccc(C)c1: two ring carbons carry methyls, so four ring
// positions and both methyls remain substitutable.
func metaXylene() *mtypes.Skeleton {
	return &mtypes.Skeleton{
		AtomicNumbers:     []mtypes.AtomicNumber{6, 6, 6, 6, 6, 6, 6, 6},
		ImplicitHydrogens: []uint8{3, 0, 1, 1, 1, 0, 3, 1},
		Bonds: []mtypes.Bond{
			{Atom1: 0, Atom2: 1, Order: mtypes.BondSingle},
			{Atom1: 5, Atom2: 6, Order: mtypes.BondSingle},
		},
		AromaticBonds: []mtypes.AromaticBond{
			{Atom1: 1, Atom2: 2}, {Atom1: 2, Atom2: 3}, {Atom1: 3, Atom2: 4},
			{Atom1: 4, Atom2: 5}, {Atom1: 5, Atom2: 7}, {Atom1: 7, Atom2: 1},
		},
	}
}

// saturated is C(F)(F)(F)F: no atom has capacity left.
func saturated() *mtypes.Skeleton {
	return &mtypes.Skeleton{
		AtomicNumbers:     []mtypes.AtomicNumber{6, 9, 9, 9, 9},
		ImplicitHydrogens: []uint8{0, 0, 0, 0, 0},
		Bonds: []mtypes.Bond{
			{Atom1: 0, Atom2: 1, Order: mtypes.BondSingle},
			{Atom1: 0, Atom2: 2, Order: mtypes.BondSingle},
			{Atom1: 0, Atom2: 3, Order: mtypes.BondSingle},
			{Atom1: 0, Atom2: 4, Order: mtypes.BondSingle},
		},
	}
}

func bromo() *mtypes.Substituent {
	return &mtypes.Substituent{AtomicNumbers: []mtypes.AtomicNumber{35}}
}

// nitroso is N=O attached through nitrogen.
func nitroso() *mtypes.Substituent {
	return &mtypes.Substituent{
		AtomicNumbers:     []mtypes.AtomicNumber{7, 8},
		Bonds:             []mtypes.Bond{{Atom1: 0, Atom2: 1, Order: mtypes.BondDouble}},
		ImplicitHydrogens: []uint8{1, 0},
	}
}

func brAndNO() []*mtypes.Substituent {
	return []*mtypes.Substituent{bromo(), nitroso()}
}

//Personal.AI order the ending

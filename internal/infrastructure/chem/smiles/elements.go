package smiles

import (
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

// symbols is indexed by atomic number; index 0 is unused.
var symbols = [mtypes.MaxAtomicNumber + 1]string{
	"",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd",
	"In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba",
	"La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb", "Lu",
	"Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg",
	"Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra",
	"Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm", "Md", "No", "Lr",
	"Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds", "Rg", "Cn",
	"Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var bySymbol = func() map[string]mtypes.AtomicNumber {
	m := make(map[string]mtypes.AtomicNumber, len(symbols))
	for z, sym := range symbols {
		if sym != "" {
			m[sym] = mtypes.AtomicNumber(z)
		}
	}
	return m
}()

// Symbol returns the element symbol for z, or "" when z is out of range.
func Symbol(z mtypes.AtomicNumber) string {
	if int(z) >= len(symbols) {
		return ""
	}
	return symbols[z]
}

// AtomicNumberOf resolves an element symbol such as "Cl".
func AtomicNumberOf(symbol string) (mtypes.AtomicNumber, bool) {
	z, ok := bySymbol[symbol]
	return z, ok
}

// organic subset atoms may be written without brackets; their hydrogens are
// implied by the lowest default valence that fits.
var defaultValences = map[mtypes.AtomicNumber][]int{
	5:  {3},       // B
	6:  {4},       // C
	7:  {3, 5},    // N
	8:  {2},       // O
	15: {3, 5},    // P
	16: {2, 4, 6}, // S
	9:  {1},       // F
	17: {1},       // Cl
	35: {1},       // Br
	53: {1},       // I
}

// aromaticCapable lists elements with a lowercase aromatic spelling.  Only
// the first six may appear outside brackets.
var aromaticCapable = map[mtypes.AtomicNumber]bool{
	5: true, 6: true, 7: true, 8: true, 15: true, 16: true,
	34: true, 33: true, 52: true, // se, as, te
}

func isOrganic(z mtypes.AtomicNumber) bool {
	_, ok := defaultValences[z]
	return ok
}

func isAromaticOrganic(z mtypes.AtomicNumber) bool {
	switch z {
	case 5, 6, 7, 8, 15, 16:
		return true
	}
	return false
}

// impliedHydrogens returns the hydrogen count a reader derives for an
// unbracketed atom whose bonds contribute bondSum valence units.  Aromatic
// atoms reserve one unit for the delocalised system and only consider their
// lowest valence.
func impliedHydrogens(z mtypes.AtomicNumber, aromatic bool, bondSum int) uint8 {
	valences := defaultValences[z]
	if len(valences) == 0 {
		return 0
	}
	if aromatic {
		bondSum++
		valences = valences[:1]
	}
	for _, v := range valences {
		if v >= bondSum {
			return uint8(v - bondSum)
		}
	}
	return 0
}

//Personal.AI order the ending

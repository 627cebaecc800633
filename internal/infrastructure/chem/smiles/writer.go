package smiles

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/keyip-combinator/pkg/errors"
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

const maxRingDigit = 99

type neighbor struct {
	atom     int
	id       int
	order    mtypes.BondOrder
	aromatic bool
}

type writer struct {
	c        *mtypes.Composite
	adj      [][]neighbor
	lower    []bool
	bridge   []bool
	visited  []bool
	children [][]neighbor
	rings    [][]neighbor
	digits   map[int]int
	inUse    [maxRingDigit + 1]bool
	sb       strings.Builder
}

// Write renders c as SMILES by depth-first traversal from atom 0.  The output
// is deterministic for a given graph but not canonical: two isomorphic
// composites may produce different strings.
//
// Atoms carrying aromatic bonds are written in lowercase where SMILES allows
// it.  Organic-subset atoms are left unbracketed whenever a reader would
// derive the same hydrogen count the composite's counter holds.
func Write(c *mtypes.Composite) (string, error) {
	if c == nil {
		return "", errors.InvalidParam("composite is nil")
	}
	if err := c.Validate(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeMoleculeConversionFailed, "cannot write composite")
	}
	n := c.NumAtoms()
	if n == 0 {
		return "", nil
	}

	w := &writer{
		c:        c,
		adj:      make([][]neighbor, n),
		lower:    make([]bool, n),
		visited:  make([]bool, n),
		children: make([][]neighbor, n),
		rings:    make([][]neighbor, n),
		digits:   make(map[int]int),
	}
	for i, b := range c.Bonds {
		if b.Order > mtypes.BondQuadruple {
			return "", errors.New(errors.ErrCodeMoleculeConversionFailed, "bond order has no SMILES symbol").
				WithDetail(fmt.Sprintf("bond=%d order=%d", i, b.Order))
		}
		w.link(b.Atom1, b.Atom2, i, b.Order, false)
	}
	for j, b := range c.AromaticBonds {
		w.link(b.Atom1, b.Atom2, len(c.Bonds)+j, 0, true)
		w.lower[b.Atom1] = aromaticCapable[c.AtomicNumbers[b.Atom1]]
		w.lower[b.Atom2] = aromaticCapable[c.AtomicNumbers[b.Atom2]]
	}
	w.markBridges()

	for root := 0; root < n; root++ {
		if !w.visited[root] {
			w.explore(root, -1)
		}
	}

	emitted := make([]bool, n)
	for root := 0; root < n; root++ {
		if emitted[root] {
			continue
		}
		if root > 0 {
			w.sb.WriteByte('.')
		}
		if err := w.emit(root, emitted); err != nil {
			return "", err
		}
	}
	return w.sb.String(), nil
}

func (w *writer) link(a, b, id int, order mtypes.BondOrder, aromatic bool) {
	w.adj[a] = append(w.adj[a], neighbor{atom: b, id: id, order: order, aromatic: aromatic})
	w.adj[b] = append(w.adj[b], neighbor{atom: a, id: id, order: order, aromatic: aromatic})
}

// markBridges flags aromatic bonds outside rings; those are written with an
// explicit ':' so a reader does not demote them to single bonds.
func (w *writer) markBridges() {
	if len(w.c.AromaticBonds) == 0 {
		return
	}
	all := make([]parsedBond, 0, len(w.c.Bonds)+len(w.c.AromaticBonds))
	for _, b := range w.c.Bonds {
		all = append(all, parsedBond{a: b.Atom1, b: b.Atom2})
	}
	for _, b := range w.c.AromaticBonds {
		all = append(all, parsedBond{a: b.Atom1, b: b.Atom2})
	}
	w.bridge = findBridges(w.c.NumAtoms(), all)
}

// explore builds the spanning tree and records every non-tree bond as a ring
// closure on both of its atoms.
func (w *writer) explore(u, via int) {
	w.visited[u] = true
	for _, e := range w.adj[u] {
		if e.id == via {
			continue
		}
		if !w.visited[e.atom] {
			w.children[u] = append(w.children[u], e)
			w.explore(e.atom, e.id)
			continue
		}
		if _, seen := w.digits[e.id]; seen {
			continue
		}
		w.digits[e.id] = 0
		w.rings[u] = append(w.rings[u], e)
		back := e
		back.atom = u
		w.rings[e.atom] = append(w.rings[e.atom], back)
	}
}

func (w *writer) emit(u int, emitted []bool) error {
	emitted[u] = true
	w.writeAtom(u)

	// Close before opening so a digit is never reused on the same atom.
	var freed []int
	for _, e := range w.rings[u] {
		if d := w.digits[e.id]; d > 0 && emitted[e.atom] {
			w.writeRingDigit(d)
			freed = append(freed, d)
		}
	}
	for _, e := range w.rings[u] {
		if emitted[e.atom] {
			continue
		}
		d, err := w.allocDigit()
		if err != nil {
			return err
		}
		w.digits[e.id] = d
		w.sb.WriteString(w.bondSymbol(u, e))
		w.writeRingDigit(d)
	}
	for _, d := range freed {
		w.inUse[d] = false
	}

	kids := w.children[u]
	for i, e := range kids {
		branch := i < len(kids)-1
		if branch {
			w.sb.WriteByte('(')
		}
		w.sb.WriteString(w.bondSymbol(u, e))
		if err := w.emit(e.atom, emitted); err != nil {
			return err
		}
		if branch {
			w.sb.WriteByte(')')
		}
	}
	return nil
}

func (w *writer) allocDigit() (int, error) {
	for d := 1; d <= maxRingDigit; d++ {
		if !w.inUse[d] {
			w.inUse[d] = true
			return d, nil
		}
	}
	return 0, errors.New(errors.ErrCodeMoleculeConversionFailed, "too many open rings")
}

func (w *writer) writeRingDigit(d int) {
	if d > 9 {
		w.sb.WriteByte('%')
	}
	w.sb.WriteString(strconv.Itoa(d))
}

func (w *writer) bondSymbol(u int, e neighbor) string {
	bothLower := w.lower[u] && w.lower[e.atom]
	if e.aromatic {
		if bothLower && (w.bridge == nil || !w.bridge[e.id]) {
			return ""
		}
		return ":"
	}
	switch e.order {
	case mtypes.BondDouble:
		return "="
	case mtypes.BondTriple:
		return "#"
	case mtypes.BondQuadruple:
		return "$"
	}
	if bothLower {
		return "-"
	}
	return ""
}

func (w *writer) bondSum(u int) int {
	sum := 0
	for _, e := range w.adj[u] {
		if e.aromatic {
			sum++
			continue
		}
		sum += int(e.order)
	}
	return sum
}

func (w *writer) writeAtom(u int) {
	z := w.c.AtomicNumbers[u]
	sym := Symbol(z)
	lower := w.lower[u]

	implied := impliedHydrogens(z, lower, w.bondSum(u))
	actual := implied
	if w.c.ImplicitHydrogens != nil {
		actual = w.c.ImplicitHydrogens[u]
	}

	bare := isOrganic(z) && (!lower || isAromaticOrganic(z)) && implied == actual
	if lower {
		sym = strings.ToLower(sym[:1]) + sym[1:]
	}
	if bare {
		w.sb.WriteString(sym)
		return
	}

	w.sb.WriteByte('[')
	w.sb.WriteString(sym)
	if actual > 0 {
		w.sb.WriteByte('H')
		if actual > 1 {
			w.sb.WriteString(strconv.Itoa(int(actual)))
		}
	}
	w.sb.WriteByte(']')
}

//Personal.AI order the ending

// Package smiles reads and writes the SMILES line notation for the molecule
// graph types.  It covers the OpenSMILES subset the combinator needs: organic
// and bracket atoms, bond symbols, branches, ring closures and dot
// disconnection.  Stereo marks are read as plain single bonds; charges,
// isotopes and atom classes are accepted and dropped because the graph model
// does not carry them.
package smiles

import (
	"fmt"
	"strings"

	"github.com/turtacn/keyip-combinator/pkg/errors"
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

// bondKind is the bond read from the input before it is classified.
type bondKind int

const (
	bondNone bondKind = iota // no symbol written
	bondSingle
	bondDouble
	bondTriple
	bondQuadruple
	bondAromatic
)

type parsedAtom struct {
	z        mtypes.AtomicNumber
	aromatic bool
	bracket  bool
	hcount   uint8
}

type parsedBond struct {
	a, b int
	kind bondKind
	// implicit is set for aromatic bonds inferred from two lowercase atoms.
	implicit bool
}

type ringOpening struct {
	atom int
	kind bondKind
	pos  int
}

type parser struct {
	src   string
	pos   int
	atoms []parsedAtom
	bonds []parsedBond
	rings map[int]ringOpening
}

// ParseSkeleton reads s into a skeleton graph with a hydrogen-capacity
// counter.  Bond types outside single..quadruple and aromatic are rejected
// with MOL_016.
func ParseSkeleton(s string) (*mtypes.Skeleton, error) {
	p, err := parse(s)
	if err != nil {
		return nil, err
	}
	sk := &mtypes.Skeleton{
		AtomicNumbers:     make([]mtypes.AtomicNumber, len(p.atoms)),
		ImplicitHydrogens: p.hydrogens(),
	}
	for i, a := range p.atoms {
		sk.AtomicNumbers[i] = a.z
	}
	sk.Bonds, sk.AromaticBonds = p.split()
	return sk, nil
}

// ParseSubstituent reads s into a substituent graph rooted at its first atom.
// Substituents cannot contain aromatic bonds; such input is rejected with
// MOL_016.
func ParseSubstituent(s string) (*mtypes.Substituent, error) {
	p, err := parse(s)
	if err != nil {
		return nil, err
	}
	bonds, aromatic := p.split()
	if len(aromatic) > 0 {
		return nil, errors.New(errors.ErrCodeUnsupportedBondType, "unsupported bond type: aromatic").
			WithDetail(fmt.Sprintf("substituent %q has %d aromatic bonds", s, len(aromatic)))
	}
	sub := &mtypes.Substituent{
		AtomicNumbers:     make([]mtypes.AtomicNumber, len(p.atoms)),
		Bonds:             bonds,
		ImplicitHydrogens: p.hydrogens(),
	}
	for i, a := range p.atoms {
		sub.AtomicNumbers[i] = a.z
	}
	return sub, nil
}

func parse(s string) (*parser, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.InvalidParam("SMILES must not be empty")
	}
	p := &parser{src: s, rings: make(map[int]ringOpening)}
	if err := p.run(); err != nil {
		return nil, err
	}
	p.demoteBridgingAromatics()
	return p, nil
}

func (p *parser) syntaxError(format string, args ...interface{}) *errors.AppError {
	return errors.New(errors.ErrCodeMoleculeInvalidSMILES, fmt.Sprintf(format, args...)).
		WithDetail(fmt.Sprintf("%q at offset %d", p.src, p.pos))
}

func (p *parser) unsupportedBond(symbol string) *errors.AppError {
	return errors.New(errors.ErrCodeUnsupportedBondType, "unsupported bond type: "+symbol).
		WithDetail(fmt.Sprintf("%q at offset %d", p.src, p.pos))
}

// run is a single left-to-right pass.  prev is the atom the next bond starts
// from, -1 at the start of a component.
func (p *parser) run() error {
	prev := -1
	pending := bondNone
	pendingSet := false
	var branches []int

	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch {
		case ch == '(':
			if prev < 0 || pendingSet {
				return p.syntaxError("branch must follow an atom")
			}
			branches = append(branches, prev)
			p.pos++

		case ch == ')':
			if len(branches) == 0 {
				return p.syntaxError("unbalanced ')'")
			}
			if pendingSet {
				return p.syntaxError("bond without a following atom")
			}
			prev = branches[len(branches)-1]
			branches = branches[:len(branches)-1]
			p.pos++

		case ch == '.':
			if pendingSet || prev < 0 || p.pos == len(p.src)-1 {
				return p.syntaxError("misplaced '.'")
			}
			prev = -1
			p.pos++

		case isBondSymbol(ch):
			if prev < 0 || pendingSet {
				return p.syntaxError("misplaced bond symbol %q", ch)
			}
			kind, err := p.readBond()
			if err != nil {
				return err
			}
			pending, pendingSet = kind, true

		case ch >= '0' && ch <= '9' || ch == '%':
			if prev < 0 {
				return p.syntaxError("ring closure must follow an atom")
			}
			num, err := p.readRingNumber()
			if err != nil {
				return err
			}
			if err := p.ringClosure(prev, num, pending); err != nil {
				return err
			}
			pending, pendingSet = bondNone, false

		default:
			idx, err := p.readAtom()
			if err != nil {
				return err
			}
			if prev >= 0 {
				p.addBond(prev, idx, pending)
			}
			prev = idx
			pending, pendingSet = bondNone, false
		}
	}

	switch {
	case pendingSet:
		return p.syntaxError("bond without a following atom")
	case len(branches) > 0:
		return p.syntaxError("unclosed branch")
	case len(p.rings) > 0:
		first := -1
		for num, open := range p.rings {
			if first < 0 || open.pos < p.rings[first].pos {
				first = num
			}
		}
		return p.syntaxError("unclosed ring %d", first)
	}
	return nil
}

func isBondSymbol(ch byte) bool {
	switch ch {
	case '-', '=', '#', '$', ':', '/', '\\', '~', '<':
		return true
	}
	return false
}

func (p *parser) readBond() (bondKind, error) {
	ch := p.src[p.pos]
	p.pos++
	switch ch {
	case '-':
		if p.pos < len(p.src) && p.src[p.pos] == '>' {
			return bondNone, p.unsupportedBond("dative (->)")
		}
		return bondSingle, nil
	case '/', '\\':
		return bondSingle, nil
	case '=':
		return bondDouble, nil
	case '#':
		return bondTriple, nil
	case '$':
		return bondQuadruple, nil
	case ':':
		return bondAromatic, nil
	case '~':
		return bondNone, p.unsupportedBond("any (~)")
	case '<':
		if p.pos < len(p.src) && p.src[p.pos] == '-' {
			return bondNone, p.unsupportedBond("dative (<-)")
		}
	}
	p.pos--
	return bondNone, p.syntaxError("unexpected character %q", ch)
}

func (p *parser) readRingNumber() (int, error) {
	if p.src[p.pos] != '%' {
		n := int(p.src[p.pos] - '0')
		p.pos++
		return n, nil
	}
	if p.pos+2 >= len(p.src) || !isDigit(p.src[p.pos+1]) || !isDigit(p.src[p.pos+2]) {
		return 0, p.syntaxError("'%%' must be followed by two digits")
	}
	n := int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
	p.pos += 3
	return n, nil
}

func (p *parser) ringClosure(atom, num int, kind bondKind) error {
	open, ok := p.rings[num]
	if !ok {
		p.rings[num] = ringOpening{atom: atom, kind: kind, pos: p.pos}
		return nil
	}
	delete(p.rings, num)
	if open.atom == atom {
		return p.syntaxError("ring %d closes on its own atom", num)
	}
	if open.kind != bondNone && kind != bondNone && open.kind != kind {
		return p.syntaxError("ring %d has conflicting bond symbols", num)
	}
	if kind == bondNone {
		kind = open.kind
	}
	for _, b := range p.bonds {
		if (b.a == open.atom && b.b == atom) || (b.a == atom && b.b == open.atom) {
			return p.syntaxError("ring %d duplicates an existing bond", num)
		}
	}
	p.addBond(open.atom, atom, kind)
	return nil
}

func (p *parser) addBond(a, b int, kind bondKind) {
	implicit := false
	if kind == bondNone {
		if p.atoms[a].aromatic && p.atoms[b].aromatic {
			kind, implicit = bondAromatic, true
		} else {
			kind = bondSingle
		}
	}
	p.bonds = append(p.bonds, parsedBond{a: a, b: b, kind: kind, implicit: implicit})
}

// ─────────────────────────────────────────────────────────────────────────────
// atoms
// ─────────────────────────────────────────────────────────────────────────────

func (p *parser) readAtom() (int, error) {
	if p.src[p.pos] == '[' {
		return p.readBracketAtom()
	}

	rest := p.src[p.pos:]
	var (
		sym      string
		aromatic bool
	)
	switch {
	case strings.HasPrefix(rest, "Cl"):
		sym = "Cl"
	case strings.HasPrefix(rest, "Br"):
		sym = "Br"
	default:
		switch c := rest[0]; c {
		case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
			sym = string(c)
		case 'b', 'c', 'n', 'o', 'p', 's':
			sym, aromatic = strings.ToUpper(string(c)), true
		case '*':
			return 0, errors.New(errors.ErrCodeUnsupportedElement, "wildcard atom is not supported").
				WithDetail(fmt.Sprintf("%q at offset %d", p.src, p.pos))
		default:
			return 0, p.syntaxError("unexpected character %q", c)
		}
	}
	z, _ := AtomicNumberOf(sym)
	p.pos += len(sym)
	p.atoms = append(p.atoms, parsedAtom{z: z, aromatic: aromatic})
	return len(p.atoms) - 1, nil
}

func (p *parser) readBracketAtom() (int, error) {
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return 0, p.syntaxError("unclosed '['")
	}
	body := p.src[p.pos+1 : p.pos+end]
	atom, err := p.parseBracketBody(body)
	if err != nil {
		return 0, err
	}
	p.pos += end + 1
	p.atoms = append(p.atoms, atom)
	return len(p.atoms) - 1, nil
}

// parseBracketBody reads isotope? symbol chiral? hcount? charge? class?.
func (p *parser) parseBracketBody(body string) (parsedAtom, error) {
	i := 0
	for i < len(body) && isDigit(body[i]) {
		i++
	}

	var atom parsedAtom
	if i < len(body) && body[i] == '*' {
		return atom, errors.New(errors.ErrCodeUnsupportedElement, "wildcard atom is not supported").
			WithDetail(fmt.Sprintf("%q", p.src))
	}
	sym, aromatic, n := bracketSymbol(body[i:])
	if n == 0 {
		return atom, p.syntaxError("unknown element in [%s]", body)
	}
	i += n
	z, _ := AtomicNumberOf(sym)
	atom = parsedAtom{z: z, aromatic: aromatic, bracket: true}

	// chirality: @, @@, or @ followed by a class tag and number
	if i < len(body) && body[i] == '@' {
		for i < len(body) && body[i] == '@' {
			i++
		}
		for i < len(body) && (isUpper(body[i]) && body[i] != 'H' || isDigit(body[i])) {
			i++
		}
	}

	if i < len(body) && body[i] == 'H' {
		i++
		atom.hcount = 1
		if i < len(body) && isDigit(body[i]) {
			atom.hcount = body[i] - '0'
			i++
		}
	}

	for i < len(body) && (body[i] == '+' || body[i] == '-') {
		i++
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}

	if i < len(body) && body[i] == ':' {
		i++
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}

	if i != len(body) {
		return atom, p.syntaxError("malformed bracket atom [%s]", body)
	}
	return atom, nil
}

// bracketSymbol matches the longest element symbol at the start of s.
func bracketSymbol(s string) (sym string, aromatic bool, n int) {
	if len(s) >= 2 {
		switch s[:2] {
		case "se", "as", "te":
			return strings.ToUpper(s[:1]) + s[1:2], true, 2
		}
	}
	if len(s) >= 2 && isUpper(s[0]) && isLower(s[1]) {
		if _, ok := AtomicNumberOf(s[:2]); ok {
			return s[:2], false, 2
		}
	}
	if len(s) >= 1 && isUpper(s[0]) {
		if _, ok := AtomicNumberOf(s[:1]); ok {
			return s[:1], false, 1
		}
	}
	if len(s) >= 1 {
		switch s[0] {
		case 'b', 'c', 'n', 'o', 'p', 's':
			return strings.ToUpper(s[:1]), true, 1
		}
	}
	return "", false, 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

// ─────────────────────────────────────────────────────────────────────────────
// post-processing
// ─────────────────────────────────────────────────────────────────────────────

// demoteBridgingAromatics turns inferred aromatic bonds that are not part of
// any ring into single bonds, so "c1ccccc1c1ccccc1" links its rings with a
// single bond.
func (p *parser) demoteBridgingAromatics() {
	hasImplicit := false
	for _, b := range p.bonds {
		if b.implicit {
			hasImplicit = true
			break
		}
	}
	if !hasImplicit {
		return
	}
	bridges := findBridges(len(p.atoms), p.bonds)
	for i := range p.bonds {
		if p.bonds[i].implicit && bridges[i] {
			p.bonds[i].kind = bondSingle
			p.bonds[i].implicit = false
		}
	}
}

// findBridges marks the bonds whose removal disconnects the graph.
func findBridges(numAtoms int, bonds []parsedBond) []bool {
	type edge struct{ to, id int }
	adj := make([][]edge, numAtoms)
	for i, b := range bonds {
		adj[b.a] = append(adj[b.a], edge{b.b, i})
		adj[b.b] = append(adj[b.b], edge{b.a, i})
	}

	disc := make([]int, numAtoms)
	low := make([]int, numAtoms)
	for i := range disc {
		disc[i] = -1
	}
	bridge := make([]bool, len(bonds))
	timer := 0

	var visit func(u, viaEdge int)
	visit = func(u, viaEdge int) {
		disc[u], low[u] = timer, timer
		timer++
		for _, e := range adj[u] {
			if e.id == viaEdge {
				continue
			}
			if disc[e.to] < 0 {
				visit(e.to, e.id)
				if low[e.to] < low[u] {
					low[u] = low[e.to]
				}
				if low[e.to] > disc[u] {
					bridge[e.id] = true
				}
			} else if disc[e.to] < low[u] {
				low[u] = disc[e.to]
			}
		}
	}
	for u := 0; u < numAtoms; u++ {
		if disc[u] < 0 {
			visit(u, -1)
		}
	}
	return bridge
}

// split separates ordinary and aromatic bonds.
func (p *parser) split() ([]mtypes.Bond, []mtypes.AromaticBond) {
	var (
		bonds    = make([]mtypes.Bond, 0, len(p.bonds))
		aromatic []mtypes.AromaticBond
	)
	for _, b := range p.bonds {
		if b.kind == bondAromatic {
			aromatic = append(aromatic, mtypes.AromaticBond{Atom1: b.a, Atom2: b.b})
			continue
		}
		bonds = append(bonds, mtypes.Bond{Atom1: b.a, Atom2: b.b, Order: mtypes.BondOrder(b.kind)})
	}
	return bonds, aromatic
}

// hydrogens derives the capacity counter: explicit for bracket atoms, from
// default valences otherwise.
func (p *parser) hydrogens() []uint8 {
	sums := make([]int, len(p.atoms))
	for _, b := range p.bonds {
		v := int(b.kind)
		if b.kind == bondAromatic {
			v = 1
		}
		sums[b.a] += v
		sums[b.b] += v
	}
	h := make([]uint8, len(p.atoms))
	for i, a := range p.atoms {
		if a.bracket {
			h[i] = a.hcount
			continue
		}
		h[i] = impliedHydrogens(a.z, a.aromatic, sums[i])
	}
	return h
}

//Personal.AI order the ending

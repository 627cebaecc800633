package substitution

import (
	"fmt"
	"math/bits"
)

// Combination is one unit of work for the grafter: Sites holds distinct
// skeleton atom indices in ascending order and Assignment[i] is the index of
// the substituent placed at Sites[i].
type Combination struct {
	Sites      []int `json:"sites"`
	Assignment []int `json:"assignment"`
}

// Size returns the number of grafts the combination performs.
func (c Combination) Size() int {
	return len(c.Sites)
}

// Iterator produces combinations lazily so the full set is never held in
// memory.  An Iterator is not safe for concurrent use.
type Iterator struct {
	sites   []int
	numSubs int
	n       int

	// general mode state: subset holds positions into sites.
	subset []int
	assign []int

	// single mode state
	single  bool
	siteIdx int
	subIdx  int

	started bool
	done    bool
}

// SingleCombinations emits ({s}, [g]) for every site s in order and every
// substituent g in list order.  The count is len(sites) * numSubs.
func SingleCombinations(sites []int, numSubs int) *Iterator {
	if numSubs < 0 {
		panic(fmt.Sprintf("substitution: negative substituent count %d", numSubs))
	}
	return &Iterator{
		sites:   sites,
		numSubs: numSubs,
		n:       1,
		single:  true,
		done:    len(sites) == 0 || numSubs == 0,
	}
}

// Combinations emits every n-subset of sites in lexicographic order crossed
// with every assignment in {0..numSubs-1}^n in odometer order.  n = 0 emits a
// single empty combination; n > len(sites) emits nothing.
func Combinations(sites []int, numSubs, n int) *Iterator {
	if n < 0 {
		panic(fmt.Sprintf("substitution: negative substitution count %d", n))
	}
	if numSubs < 0 {
		panic(fmt.Sprintf("substitution: negative substituent count %d", numSubs))
	}
	it := &Iterator{
		sites:   sites,
		numSubs: numSubs,
		n:       n,
	}
	if n > len(sites) || (n > 0 && numSubs == 0) {
		it.done = true
		return it
	}
	it.subset = make([]int, n)
	for i := range it.subset {
		it.subset[i] = i
	}
	it.assign = make([]int, n)
	return it
}

// Next returns the next combination.  The returned slices are owned by the
// caller.  ok is false once the sequence is exhausted.
func (it *Iterator) Next() (c Combination, ok bool) {
	if it.done {
		return Combination{}, false
	}
	if it.single {
		return it.nextSingle()
	}

	if it.started && !it.advanceAssignment() && !it.advanceSubset() {
		it.done = true
		return Combination{}, false
	}
	it.started = true

	c = Combination{
		Sites:      make([]int, it.n),
		Assignment: make([]int, it.n),
	}
	for i, pos := range it.subset {
		c.Sites[i] = it.sites[pos]
	}
	copy(c.Assignment, it.assign)
	return c, true
}

func (it *Iterator) nextSingle() (Combination, bool) {
	c := Combination{
		Sites:      []int{it.sites[it.siteIdx]},
		Assignment: []int{it.subIdx},
	}
	it.subIdx++
	if it.subIdx == it.numSubs {
		it.subIdx = 0
		it.siteIdx++
		it.done = it.siteIdx == len(it.sites)
	}
	return c, true
}

// advanceAssignment steps the odometer, last digit fastest.  It reports false
// when every digit wrapped around.
func (it *Iterator) advanceAssignment() bool {
	for i := len(it.assign) - 1; i >= 0; i-- {
		it.assign[i]++
		if it.assign[i] < it.numSubs {
			return true
		}
		it.assign[i] = 0
	}
	return false
}

// advanceSubset moves to the next n-subset in lexicographic order.
func (it *Iterator) advanceSubset() bool {
	k, n := len(it.sites), it.n
	for i := n - 1; i >= 0; i-- {
		if it.subset[i] < k-n+i {
			it.subset[i]++
			for j := i + 1; j < n; j++ {
				it.subset[j] = it.subset[j-1] + 1
			}
			return true
		}
	}
	return false
}

// CountCombinations returns C(numSites, n) * numSubs^n without enumerating.
// overflow is true when the exact count does not fit in a uint64.
func CountCombinations(numSites, numSubs, n int) (count uint64, overflow bool) {
	if n < 0 || numSites < 0 || numSubs < 0 || n > numSites {
		return 0, false
	}
	if n == 0 {
		return 1, false
	}
	if numSubs == 0 {
		return 0, false
	}

	k := uint64(numSites)
	r := uint64(n)
	if k-r < r {
		r = k - r
	}
	// c*(k-i)/(i+1) is always integral, so a 128-bit product followed by a
	// division yields the exact next binomial or proves it overflows.
	count = 1
	for i := uint64(0); i < r; i++ {
		hi, lo := bits.Mul64(count, k-i)
		if hi >= i+1 {
			return 0, true
		}
		count, _ = bits.Div64(hi, lo, i+1)
	}

	g := uint64(numSubs)
	for i := 0; i < n; i++ {
		hi, lo := bits.Mul64(count, g)
		if hi != 0 {
			return 0, true
		}
		count = lo
	}
	return count, false
}

//Personal.AI order the ending

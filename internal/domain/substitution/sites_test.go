package substitution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

func TestSites_CapacityOnly(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, Sites(propane()))
	assert.Equal(t, []int{0, 2, 3, 4, 6, 7}, Sites(metaXylene()))
}

func TestSites_NoneIsEmptyNotNil(t *testing.T) {
	sites := Sites(saturated())
	assert.NotNil(t, sites)
	assert.Empty(t, sites)

	assert.Empty(t, Sites(&mtypes.Skeleton{}))
}

func TestSites_ElementFilter(t *testing.T) {
	s := &mtypes.Skeleton{
		AtomicNumbers:     []mtypes.AtomicNumber{6, 8, 7, 6},
		ImplicitHydrogens: []uint8{3, 1, 2, 0},
		Bonds: []mtypes.Bond{
			{Atom1: 0, Atom2: 1, Order: mtypes.BondSingle},
			{Atom1: 1, Atom2: 2, Order: mtypes.BondSingle},
			{Atom1: 2, Atom2: 3, Order: mtypes.BondSingle},
		},
	}
	assert.Equal(t, []int{0, 1, 2}, Sites(s))
	assert.Equal(t, []int{0}, Sites(s, ElementFilter(6)))
	assert.Equal(t, []int{1, 2}, Sites(s, ElementFilter(7, 8)))
	assert.Empty(t, Sites(s, ElementFilter(6), ElementFilter(7)))
}

func TestSites_DoesNotDependOnTopology(t *testing.T) {
	s := propane()
	s.Bonds = nil
	assert.Equal(t, []int{0, 1, 2}, Sites(s))
}

//Personal.AI order the ending

package smiles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyip-combinator/internal/domain/substitution"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	mtypes "github.com/turtacn/keyip-combinator/pkg/types/molecule"
)

func composite(t *testing.T, smiles string) *mtypes.Composite {
	t.Helper()
	s, err := ParseSkeleton(smiles)
	require.NoError(t, err)
	return &mtypes.Composite{
		AtomicNumbers:     s.AtomicNumbers,
		Bonds:             s.Bonds,
		AromaticBonds:     s.AromaticBonds,
		ImplicitHydrogens: s.ImplicitHydrogens,
	}
}

func TestWrite_ReproducesSimpleInputs(t *testing.T) {
	for _, in := range []string{
		"CCC",
		"CC(C)Br",
		"c1ccccc1",
		"Cc1cccc(C)c1",
		"C1CC1C1CC1",
		"c1ccccc1:c1ccccc1",
		"c1ccccc1-c1ccccc1",
		"CC(=O)O",
		"C#N",
		"c1cc[nH]c1",
	} {
		t.Run(in, func(t *testing.T) {
			out, err := Write(composite(t, in))
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestWrite_BracketsWhenCounterDiffers(t *testing.T) {
	out, err := Write(&mtypes.Composite{
		AtomicNumbers:     []mtypes.AtomicNumber{6},
		ImplicitHydrogens: []uint8{0},
	})
	require.NoError(t, err)
	assert.Equal(t, "[C]", out)

	out, err = Write(&mtypes.Composite{
		AtomicNumbers:     []mtypes.AtomicNumber{7, 8},
		Bonds:             []mtypes.Bond{{Atom1: 0, Atom2: 1, Order: mtypes.BondSingle}},
		ImplicitHydrogens: []uint8{1, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "[NH]O", out)

	out, err = Write(composite(t, "[Na+].[Cl-]"))
	require.NoError(t, err)
	assert.Equal(t, "[Na].[Cl]", out)

	out, err = Write(&mtypes.Composite{AtomicNumbers: []mtypes.AtomicNumber{26}})
	require.NoError(t, err)
	assert.Equal(t, "[Fe]", out)
}

func TestWrite_WithoutCounterUsesImpliedHydrogens(t *testing.T) {
	out, err := Write(&mtypes.Composite{
		AtomicNumbers: []mtypes.AtomicNumber{6, 8},
		Bonds:         []mtypes.Bond{{Atom1: 0, Atom2: 1, Order: mtypes.BondDouble}},
	})
	require.NoError(t, err)
	assert.Equal(t, "C=O", out)
}

func TestWrite_Empty(t *testing.T) {
	out, err := Write(&mtypes.Composite{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestWrite_Errors(t *testing.T) {
	_, err := Write(nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = Write(&mtypes.Composite{
		AtomicNumbers:     []mtypes.AtomicNumber{6, 6},
		Bonds:             []mtypes.Bond{{Atom1: 0, Atom2: 1, Order: 5}},
		ImplicitHydrogens: []uint8{0, 0},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeConversionFailed))

	_, err = Write(&mtypes.Composite{
		AtomicNumbers:     []mtypes.AtomicNumber{6},
		Bonds:             []mtypes.Bond{{Atom1: 0, Atom2: 3, Order: 1}},
		ImplicitHydrogens: []uint8{0},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeConversionFailed))
	assert.True(t, errors.IsCode(err, errors.ErrCodeGraphBondIndexInvalid))
}

func TestWrite_RoundTripsEnumeratedVariants(t *testing.T) {
	skeleton, err := ParseSkeleton("Cc1cccc(C)c1")
	require.NoError(t, err)
	var subs []*mtypes.Substituent
	for _, in := range []string{"Br", "NO", "C=O"} {
		sub, err := ParseSubstituent(in)
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	variants, err := substitution.NewEngine().Substitute(context.Background(), skeleton, subs, 2)
	require.NoError(t, err)
	require.Len(t, variants, 15*9)

	for _, v := range variants {
		out, err := Write(v)
		require.NoError(t, err)

		back, err := ParseSkeleton(out)
		require.NoError(t, err, out)
		assert.Len(t, back.AtomicNumbers, v.NumAtoms(), out)
		assert.Len(t, back.Bonds, len(v.Bonds), out)
		assert.Len(t, back.AromaticBonds, len(v.AromaticBonds), out)
		assert.Equal(t, hydrogenTotal(v.ImplicitHydrogens), hydrogenTotal(back.ImplicitHydrogens), out)
	}
}

func hydrogenTotal(h []uint8) int {
	total := 0
	for _, n := range h {
		total += int(n)
	}
	return total
}

//Personal.AI order the ending

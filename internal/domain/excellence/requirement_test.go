package excellence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

func TestDefaultRequirements_Valid(t *testing.T) {
	table, err := NewRequirementTable(DefaultRequirements())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Dean_List",
		"Fulbright_Scholar",
		"Magna_Cum_Laude",
		"Phi_Beta_Kappa",
		"Rhodes_Scholar",
		"Summa_Cum_Laude",
	}, table.Names())
	assert.Len(t, table.All(), 6)

	for _, r := range table.All() {
		assert.InDelta(t, 1.0, r.WeightGPA+r.WeightExcellence, 1e-9, r.Name)
	}
}

func TestRequirementTable_Lookup(t *testing.T) {
	table, err := NewRequirementTable(DefaultRequirements())
	require.NoError(t, err)

	r, err := table.Lookup("Rhodes_Scholar")
	require.NoError(t, err)
	assert.Equal(t, 3.9, r.GPAMin)
	assert.Equal(t, 98.0, r.ExcellenceScoreMin)
	assert.Equal(t, 0.3, r.WeightGPA)
	assert.Equal(t, 0.7, r.WeightExcellence)

	_, err = table.Lookup("dean_list")
	assert.ErrorIs(t, err, shared.ErrUnknownDistinction)
}

func TestNewRequirementTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		reqs []DistinctionRequirement
	}{
		{"empty", nil},
		{"no name", []DistinctionRequirement{{WeightGPA: 0.5, WeightExcellence: 0.5}}},
		{"name with key separator", []DistinctionRequirement{{Name: "Dean:List", WeightGPA: 0.5, WeightExcellence: 0.5}}},
		{"weights do not sum", []DistinctionRequirement{{Name: "X", WeightGPA: 0.5, WeightExcellence: 0.6}}},
		{"negative threshold", []DistinctionRequirement{{Name: "X", GPAMin: -1, WeightGPA: 1}}},
		{"negative weight", []DistinctionRequirement{{Name: "X", WeightGPA: 1.2, WeightExcellence: -0.2}}},
		{"duplicate", []DistinctionRequirement{
			{Name: "X", WeightGPA: 1},
			{Name: "X", WeightExcellence: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequirementTable(tt.reqs)
			assert.ErrorIs(t, err, shared.ErrInvalidConfig)
		})
	}
}

func TestRequirementTable_ReturnsCopies(t *testing.T) {
	table, err := NewRequirementTable(DefaultRequirements())
	require.NoError(t, err)

	names := table.Names()
	names[0] = "mutated"
	assert.Equal(t, "Dean_List", table.Names()[0])
}

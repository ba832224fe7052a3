package excellence

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

// DistinctionRequirement - пороги и веса одной академической награды.
// Загружается один раз при старте и далее только читается.
type DistinctionRequirement struct {
	Name                   string   `koanf:"name" json:"name"`
	GPAMin                 float64  `koanf:"gpa_min" json:"gpa_min"`
	ExcellenceScoreMin     float64  `koanf:"excellence_score_min" json:"excellence_score_min"`
	WeightGPA              float64  `koanf:"weight_gpa" json:"weight_gpa"`
	WeightExcellence       float64  `koanf:"weight_excellence" json:"weight_excellence"`
	AdditionalRequirements []string `koanf:"additional_requirements" json:"additional_requirements"`
}

// Validate проверяет пороги и то, что веса GPA и балла в сумме дают 1.0.
func (r DistinctionRequirement) Validate() error {
	if r.Name == "" {
		return shared.NewDomainError("excellence", "Validate", shared.ErrInvalidConfig, "distinction name cannot be empty")
	}
	// ":" разделяет части ключа кэша прогнозов
	if strings.Contains(r.Name, ":") {
		return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
			"distinction name cannot contain ':'", fmt.Errorf("%q", r.Name))
	}
	if r.GPAMin < 0 || r.ExcellenceScoreMin < 0 {
		return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
			"distinction thresholds cannot be negative", fmt.Errorf("%s: gpa_min=%v excellence_score_min=%v", r.Name, r.GPAMin, r.ExcellenceScoreMin))
	}
	if r.WeightGPA < 0 || r.WeightExcellence < 0 {
		return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
			"distinction weights cannot be negative", fmt.Errorf("%s", r.Name))
	}
	if sum := r.WeightGPA + r.WeightExcellence; math.Abs(sum-1.0) > weightTolerance {
		return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
			"distinction weights must sum to 1.0", fmt.Errorf("%s: sum=%v", r.Name, sum))
	}
	return nil
}

// RequirementTable - неизменяемая таблица требований по имени награды.
type RequirementTable struct {
	byName map[string]DistinctionRequirement
	names  []string
}

// NewRequirementTable проверяет требования и строит таблицу.
func NewRequirementTable(reqs []DistinctionRequirement) (*RequirementTable, error) {
	if len(reqs) == 0 {
		return nil, shared.NewDomainError("excellence", "Validate", shared.ErrInvalidConfig, "requirement table is empty")
	}

	t := &RequirementTable{byName: make(map[string]DistinctionRequirement, len(reqs))}
	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byName[r.Name]; dup {
			return nil, shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
				"duplicate distinction", fmt.Errorf("%s", r.Name))
		}
		r.AdditionalRequirements = append([]string(nil), r.AdditionalRequirements...)
		t.byName[r.Name] = r
		t.names = append(t.names, r.Name)
	}
	sort.Strings(t.names)
	return t, nil
}

// Lookup возвращает требование по имени.
// Для неизвестного имени возвращает ошибку вида ErrUnknownDistinction.
func (t *RequirementTable) Lookup(name string) (DistinctionRequirement, error) {
	r, ok := t.byName[name]
	if !ok {
		return DistinctionRequirement{}, shared.WrapError("excellence", "Lookup", shared.ErrUnknownDistinction,
			"distinction has no requirement entry", fmt.Errorf("%q", name))
	}
	return r, nil
}

// Names возвращает отсортированный список имён наград.
func (t *RequirementTable) Names() []string {
	return append([]string(nil), t.names...)
}

// All возвращает все требования в порядке Names().
func (t *RequirementTable) All() []DistinctionRequirement {
	out := make([]DistinctionRequirement, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, t.byName[name])
	}
	return out
}

// DefaultRequirements возвращает стандартный набор наград.
func DefaultRequirements() []DistinctionRequirement {
	return []DistinctionRequirement{
		{
			Name: "Dean_List", GPAMin: 3.5, ExcellenceScoreMin: 75,
			WeightGPA: 0.6, WeightExcellence: 0.4,
			AdditionalRequirements: []string{"top_15_percent", "full_time_enrollment"},
		},
		{
			Name: "Magna_Cum_Laude", GPAMin: 3.7, ExcellenceScoreMin: 85,
			WeightGPA: 0.5, WeightExcellence: 0.5,
			AdditionalRequirements: []string{"cumulative_gpa", "credit_hours_minimum"},
		},
		{
			Name: "Summa_Cum_Laude", GPAMin: 3.9, ExcellenceScoreMin: 95,
			WeightGPA: 0.4, WeightExcellence: 0.6,
			AdditionalRequirements: []string{"thesis_defense", "faculty_recommendation"},
		},
		{
			Name: "Phi_Beta_Kappa", GPAMin: 3.8, ExcellenceScoreMin: 90,
			WeightGPA: 0.45, WeightExcellence: 0.55,
			AdditionalRequirements: []string{"liberal_arts_focus", "character_assessment"},
		},
		{
			Name: "Rhodes_Scholar", GPAMin: 3.9, ExcellenceScoreMin: 98,
			WeightGPA: 0.3, WeightExcellence: 0.7,
			AdditionalRequirements: []string{"leadership_evidence", "athletic_achievement", "service_commitment"},
		},
		{
			Name: "Fulbright_Scholar", GPAMin: 3.8, ExcellenceScoreMin: 92,
			WeightGPA: 0.35, WeightExcellence: 0.65,
			AdditionalRequirements: []string{"research_proposal", "language_proficiency", "cultural_sensitivity"},
		},
	}
}

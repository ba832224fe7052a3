package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
)

// EngineEnvPrefix prefixes env overrides of the engine tables.
// Nested keys use a double underscore: SCHOLAR_ENGINE_WEIGHTS__ACADEMIC_PERFORMANCE=0.35
const EngineEnvPrefix = "SCHOLAR_ENGINE_"

// maxCeiling bounds the probability and confidence caps.
const maxCeiling = 95.0

// EngineTables holds the fixed constants of the scoring engine.
// Loaded once at startup and read-only afterwards.
type EngineTables struct {
	Weights          excellence.FactorWeights             `koanf:"weights"`
	LevelMultipliers map[excellence.AcademicLevel]float64 `koanf:"level_multipliers"`
	Coefficients     excellence.FactorCoefficients        `koanf:"coefficients"`
	Predictor        excellence.PredictorConfig           `koanf:"predictor"`
	Distinctions     []excellence.DistinctionRequirement  `koanf:"distinctions"`
}

// DefaultEngineTables returns the built-in tables.
func DefaultEngineTables() EngineTables {
	return EngineTables{
		Weights:          excellence.DefaultFactorWeights(),
		LevelMultipliers: excellence.DefaultLevelMultipliers(),
		Coefficients:     excellence.DefaultFactorCoefficients(),
		Predictor:        excellence.DefaultPredictorConfig(),
		Distinctions:     excellence.DefaultRequirements(),
	}
}

// LoadEngineTables layers the tables (low -> high precedence):
//  1. built-in defaults
//  2. YAML file at path, if path is not empty
//  3. env vars prefixed with EngineEnvPrefix
//
// A distinctions list in the file replaces the built-in list as a whole.
func LoadEngineTables(path string) (EngineTables, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return EngineTables{}, fmt.Errorf("load engine tables %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EngineEnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EngineEnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return EngineTables{}, fmt.Errorf("load engine env: %w", err)
	}

	tables := DefaultEngineTables()
	tables.Distinctions = nil
	if err := k.UnmarshalWithConf("", &tables, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return EngineTables{}, fmt.Errorf("decode engine tables: %w", err)
	}
	if len(tables.Distinctions) == 0 {
		tables.Distinctions = excellence.DefaultRequirements()
	}

	if err := tables.Validate(); err != nil {
		return EngineTables{}, err
	}
	return tables, nil
}

// Validate checks every table.
func (t EngineTables) Validate() error {
	var errs []error

	if err := t.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := excellence.LevelMultipliers(t.LevelMultipliers).Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := excellence.NewRequirementTable(t.Distinctions); err != nil {
		errs = append(errs, err)
	}

	p := t.Predictor
	if p.ProbabilityCeiling <= 0 || p.ProbabilityCeiling > maxCeiling {
		errs = append(errs, fmt.Errorf("predictor.probability_ceiling must be in (0, %v]", maxCeiling))
	}
	if p.Confidence.Cap <= 0 || p.Confidence.Cap > maxCeiling {
		errs = append(errs, fmt.Errorf("predictor.confidence.cap must be in (0, %v]", maxCeiling))
	}
	if p.TrajectoryBase < 0 || p.TrajectoryWeight < 0 {
		errs = append(errs, errors.New("predictor trajectory blend cannot be negative"))
	}
	if p.MaxProjectionDays < 0 {
		errs = append(errs, errors.New("predictor.max_projection_days cannot be negative"))
	}
	if t.Coefficients.GPAScale <= 0 {
		errs = append(errs, errors.New("coefficients.gpa_scale must be positive"))
	}

	return errors.Join(errs...)
}

// Engine bundles the engine components built from one set of tables.
type Engine struct {
	Calculator   *excellence.FactorCalculator
	Aggregator   *excellence.ScoreAggregator
	Analyzer     *excellence.TrajectoryAnalyzer
	Predictor    *excellence.DistinctionPredictor
	Requirements *excellence.RequirementTable
}

// Build validates the tables and constructs the engine components.
func (t EngineTables) Build() (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	aggregator, err := excellence.NewScoreAggregator(t.Weights, excellence.LevelMultipliers(t.LevelMultipliers))
	if err != nil {
		return nil, err
	}
	requirements, err := excellence.NewRequirementTable(t.Distinctions)
	if err != nil {
		return nil, err
	}
	analyzer := excellence.NewTrajectoryAnalyzer()

	return &Engine{
		Calculator:   excellence.NewFactorCalculator(t.Coefficients),
		Aggregator:   aggregator,
		Analyzer:     analyzer,
		Predictor:    excellence.NewDistinctionPredictor(requirements, analyzer, t.Weights, t.Predictor),
		Requirements: requirements,
	}, nil
}

// LoadEngine loads the tables from the file named by cfg (if any) and builds the engine.
func LoadEngine(cfg EngineConfig) (*Engine, error) {
	path := cfg.TablesFile
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("engine tables file: %w", err)
		}
	}

	tables, err := LoadEngineTables(path)
	if err != nil {
		return nil, err
	}
	return tables.Build()
}

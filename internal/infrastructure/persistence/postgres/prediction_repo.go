package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/timeutil"
)

// PredictionRepository implements excellence.PredictionWriter.
type PredictionRepository struct {
	db      Querier
	timeout time.Duration
}

// NewPredictionRepository creates a new PredictionRepository.
func NewPredictionRepository(conn *Connection) *PredictionRepository {
	return &PredictionRepository{db: conn.Pool(), timeout: conn.queryTimeout}
}

// predictionRow is the column set of one distinction_predictions row.
type predictionRow struct {
	ID              uuid.UUID
	StudentID       string
	Distinction     string
	Probability     float64
	Confidence      float64
	Gap             float64
	Projection      string
	EstimatedDate   *time.Time
	FactorsAnalysis []byte
	KeyFactors      []byte
}

func newPredictionRow(studentID string, p excellence.PredictionResult) (predictionRow, error) {
	factors := p.ImprovementFactors
	if factors == nil {
		factors = []excellence.ImprovementFactor{}
	}
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return predictionRow{}, fmt.Errorf("failed to encode improvement factors: %w", err)
	}

	keys := p.KeyFactors
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return predictionRow{}, fmt.Errorf("failed to encode key factors: %w", err)
	}

	row := predictionRow{
		ID:              uuid.New(),
		StudentID:       studentID,
		Distinction:     p.Distinction,
		Probability:     p.Probability,
		Confidence:      p.Confidence,
		Gap:             p.Gap,
		Projection:      string(p.Projection),
		FactorsAnalysis: factorsJSON,
		KeyFactors:      keysJSON,
	}
	if p.EstimatedAchievementDate != nil {
		day := timeutil.StartOfDay(*p.EstimatedAchievementDate)
		row.EstimatedDate = &day
	}
	return row, nil
}

// PersistPrediction stores one prediction snapshot.
func (r *PredictionRepository) PersistPrediction(ctx context.Context, studentID string, p excellence.PredictionResult) error {
	ctx, cancel := withQueryTimeout(ctx, r.timeout)
	defer cancel()

	row, err := newPredictionRow(studentID, p)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO distinction_predictions (
			id, student_id, distinction_type, current_probability, confidence_level,
			required_improvement_points, projection, predicted_achievement_date,
			factors_analysis, key_factors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.ID, row.StudentID, row.Distinction, row.Probability, row.Confidence,
		row.Gap, row.Projection, row.EstimatedDate,
		row.FactorsAnalysis, row.KeyFactors,
	)
	switch {
	case err == nil:
		return nil
	case IsForeignKeyViolation(err):
		return shared.WrapError("scholar", "PersistPrediction", shared.ErrNotFound, "student not found", err)
	case IsCheckViolation(err):
		return shared.WrapError("excellence", "PersistPrediction", shared.ErrInvalidInput, "prediction out of range", err)
	default:
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/timeutil"
)

// TrajectoryRepository implements excellence.TrajectoryRepository,
// excellence.ScoreWriter and excellence.TrajectoryPruner.
type TrajectoryRepository struct {
	conn *Connection
}

// NewTrajectoryRepository creates a new TrajectoryRepository.
func NewTrajectoryRepository(conn *Connection) *TrajectoryRepository {
	return &TrajectoryRepository{conn: conn}
}

// FetchTrajectoryHistory returns up to limit most recent daily points,
// earliest first.
func (r *TrajectoryRepository) FetchTrajectoryHistory(ctx context.Context, studentID string, limit int) ([]excellence.TrajectoryPoint, error) {
	ctx, cancel := withQueryTimeout(ctx, r.conn.queryTimeout)
	defer cancel()

	if limit <= 0 || limit > excellence.MaxTrajectoryPoints {
		limit = excellence.MaxTrajectoryPoints
	}

	rows, err := r.conn.Pool().Query(ctx, `
		SELECT trajectory_date, excellence_score::float8
		FROM excellence_trajectory
		WHERE student_id = $1
		ORDER BY trajectory_date DESC
		LIMIT $2`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectory: %w", err)
	}

	newestFirst, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (excellence.TrajectoryPoint, error) {
		var p excellence.TrajectoryPoint
		err := row.Scan(&p.Date, &p.Score)
		p.Date = p.Date.UTC()
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan trajectory: %w", err)
	}

	return chronological(newestFirst), nil
}

// PersistScore updates the profile score and upserts the trajectory point
// for the day of result.ComputedAt, in one transaction.
func (r *TrajectoryRepository) PersistScore(ctx context.Context, studentID string, result excellence.ScoreResult) error {
	ctx, cancel := withQueryTimeout(ctx, r.conn.queryTimeout)
	defer cancel()

	factors, err := encodeFactors(result.Factors)
	if err != nil {
		return err
	}
	score := roundScore(result.Score)
	day := timeutil.StartOfDay(result.ComputedAt)

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE scholar_profiles
			SET excellence_score = $2, last_updated = NOW()
			WHERE student_id = $1`, studentID, score)
		if err != nil {
			return fmt.Errorf("failed to update profile score: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.WrapError("scholar", "PersistScore", shared.ErrNotFound,
				"student not found", fmt.Errorf("%q", studentID))
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO excellence_trajectory (student_id, excellence_score, trajectory_date, factors_breakdown)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (student_id, trajectory_date) DO UPDATE
			SET excellence_score = EXCLUDED.excellence_score,
			    factors_breakdown = EXCLUDED.factors_breakdown,
			    created_at = NOW()`,
			studentID, score, day, factors)
		if err != nil {
			if IsCheckViolation(err) {
				return shared.WrapError("excellence", "PersistScore", shared.ErrInvalidInput, "score out of range", err)
			}
			return fmt.Errorf("failed to upsert trajectory point: %w", err)
		}
		return nil
	})
}

// PruneBefore deletes trajectory points dated before cutoff.
func (r *TrajectoryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx, r.conn.queryTimeout)
	defer cancel()

	tag, err := r.conn.Pool().Exec(ctx,
		`DELETE FROM excellence_trajectory WHERE trajectory_date < $1`,
		timeutil.StartOfDay(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune trajectory: %w", err)
	}
	return tag.RowsAffected(), nil
}

func chronological(newestFirst []excellence.TrajectoryPoint) []excellence.TrajectoryPoint {
	out := make([]excellence.TrajectoryPoint, len(newestFirst))
	for i, p := range newestFirst {
		out[len(newestFirst)-1-i] = p
	}
	return out
}

func encodeFactors(f excellence.ExcellenceFactors) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode factors: %w", err)
	}
	return b, nil
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

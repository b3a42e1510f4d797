package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const missionColumns = `id, slug, name, description, points, target_count, is_repeatable, is_active, created_at`

const userMissionColumns = `customer_email, mission_id, status, current_progress, completions,
		points_awarded, completed_at, version, updated_at`

// ListMissions returns active missions, cheapest reward first
func (q *queries) ListMissions(ctx context.Context) ([]model.Mission, error) {
	query := `
		SELECT ` + missionColumns + `
		FROM missions
		WHERE is_active = true
		ORDER BY points ASC, id ASC
	`

	missions := []model.Mission{}
	if err := q.db.SelectContext(ctx, &missions, query); err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	return missions, nil
}

// GetMission retrieves a mission by ID
func (q *queries) GetMission(ctx context.Context, id int64) (*model.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE id = $1`

	var m model.Mission
	if err := q.db.GetContext(ctx, &m, query, id); err != nil {
		return nil, getErr(err, "mission")
	}
	return &m, nil
}

// ListUserMissions returns a customer's progress rows
func (q *queries) ListUserMissions(ctx context.Context, email string) ([]model.UserMission, error) {
	query := `SELECT ` + userMissionColumns + ` FROM user_missions WHERE customer_email = $1`

	progress := []model.UserMission{}
	if err := q.db.SelectContext(ctx, &progress, query, email); err != nil {
		return nil, fmt.Errorf("failed to list user missions: %w", err)
	}
	return progress, nil
}

// GetUserMission retrieves one progress row
func (q *queries) GetUserMission(ctx context.Context, email string, missionID int64) (*model.UserMission, error) {
	query := `SELECT ` + userMissionColumns + ` FROM user_missions WHERE customer_email = $1 AND mission_id = $2`

	var um model.UserMission
	if err := q.db.GetContext(ctx, &um, query, email, missionID); err != nil {
		return nil, getErr(err, "user mission")
	}
	return &um, nil
}

// CreateUserMission inserts the first progress row for (customer, mission)
func (q *queries) CreateUserMission(ctx context.Context, um *model.UserMission) error {
	query := `
		INSERT INTO user_missions (` + userMissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		ON CONFLICT (customer_email, mission_id) DO NOTHING
	`

	um.Version = 0
	um.UpdatedAt = time.Now()
	result, err := q.db.ExecContext(ctx, query,
		um.Email, um.MissionID, um.Status, um.Progress, um.Completions,
		um.PointsAwarded, um.CompletedAt, um.UpdatedAt)
	if err != nil {
		return insertErr(err, "user mission")
	}
	return requireRow(result, ErrDuplicate, "user mission")
}

// UpdateUserMission writes progress if the version still matches
func (q *queries) UpdateUserMission(ctx context.Context, um *model.UserMission) error {
	query := `
		UPDATE user_missions
		SET status = $1, current_progress = $2, completions = $3, points_awarded = $4,
			completed_at = $5, version = version + 1, updated_at = $6
		WHERE customer_email = $7 AND mission_id = $8 AND version = $9
	`

	now := time.Now()
	result, err := q.db.ExecContext(ctx, query,
		um.Status, um.Progress, um.Completions, um.PointsAwarded,
		um.CompletedAt, now, um.Email, um.MissionID, um.Version)
	if err != nil {
		return fmt.Errorf("failed to update user mission: %w", err)
	}
	if err := requireRow(result, ErrStale, "user mission"); err != nil {
		return err
	}

	um.Version++
	um.UpdatedAt = now
	return nil
}

package model

import (
	"time"
)

// Mission is a task with a target count and a point reward.
type Mission struct {
	ID          int64     `db:"id" json:"id"`
	Slug        string    `db:"slug" json:"slug"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Points      int64     `db:"points" json:"points"`
	TargetCount int       `db:"target_count" json:"target_count"`
	Repeatable  bool      `db:"is_repeatable" json:"is_repeatable"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MissionStatus is a customer's state on one mission.
type MissionStatus string

const (
	MissionAvailable  MissionStatus = "available"
	MissionInProgress MissionStatus = "in_progress"
	MissionCompleted  MissionStatus = "completed"
)

// UserMission tracks one customer's progress. Completions counts paid
// rewards; Version guards concurrent updates.
type UserMission struct {
	Email         string        `db:"customer_email" json:"customer_email"`
	MissionID     int64         `db:"mission_id" json:"mission_id"`
	Status        MissionStatus `db:"status" json:"status"`
	Progress      int           `db:"current_progress" json:"current_progress"`
	Completions   int           `db:"completions" json:"completions"`
	PointsAwarded int64         `db:"points_awarded" json:"points_awarded"`
	CompletedAt   *time.Time    `db:"completed_at" json:"completed_at"`
	Version       int64         `db:"version" json:"-"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

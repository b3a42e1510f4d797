package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
)

// MissionService tracks mission progress and pays mission rewards.
type MissionService struct {
	deps   *Deps
	ledger *LedgerService
}

// MissionView is a mission with one customer's state on it.
type MissionView struct {
	model.Mission
	Status        model.MissionStatus `json:"status"`
	Progress      int                 `json:"current_progress"`
	Completions   int                 `json:"completions"`
	PointsAwarded int64               `json:"points_awarded"`
	CanComplete   bool                `json:"can_complete"`
}

// List returns the active missions with the customer's progress.
func (s *MissionService) List(ctx context.Context, address string) ([]MissionView, error) {
	address, err := requireEmail(address)
	if err != nil {
		return nil, err
	}

	missions, err := s.deps.Store.ListMissions(ctx)
	if err != nil {
		return nil, internalError("failed to list missions", err)
	}
	progress, err := s.deps.Store.ListUserMissions(ctx, address)
	if err != nil {
		return nil, internalError("failed to list mission progress", err)
	}
	byID := make(map[int64]model.UserMission, len(progress))
	for _, um := range progress {
		byID[um.MissionID] = um
	}

	out := make([]MissionView, 0, len(missions))
	for _, m := range missions {
		um, ok := byID[m.ID]
		if !ok {
			um = model.UserMission{Status: model.MissionAvailable}
		}
		out = append(out, MissionView{
			Mission:       m,
			Status:        um.Status,
			Progress:      um.Progress,
			Completions:   um.Completions,
			PointsAwarded: um.PointsAwarded,
			CanComplete:   completable(&m, &um),
		})
	}
	return out, nil
}

// Progress records progress on a mission, clamped to its target.
func (s *MissionService) Progress(ctx context.Context, address string, missionID int64, progress int) (um *model.UserMission, err error) {
	defer track("mission_progress", &err)()

	address, err = requireEmail(address)
	if err != nil {
		return nil, err
	}
	if progress < 0 {
		return nil, validationError("progress must not be negative")
	}

	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		m, err := activeMission(ctx, q, missionID)
		if err != nil {
			return err
		}
		um, err = userMission(ctx, q, address, m.ID)
		if err != nil {
			return err
		}
		if um.Status == model.MissionCompleted && !m.Repeatable {
			return nil
		}

		um.Progress = min(progress, m.TargetCount)
		if um.Progress > 0 {
			um.Status = model.MissionInProgress
		}
		return q.UpdateUserMission(ctx, um)
	})
	if err != nil {
		return nil, missionError(err)
	}
	return um, nil
}

// MissionCompletion is the outcome of completing a mission.
type MissionCompletion struct {
	Mission     model.Mission     `json:"mission"`
	UserMission model.UserMission `json:"user_mission"`
	Earned      *EarnResult       `json:"earned"`
}

// Complete marks a mission done and credits its reward. Non-repeatable
// missions pay once; the completion counter is updated with a
// compare-and-swap so concurrent completions cannot pay twice.
func (s *MissionService) Complete(ctx context.Context, address string, missionID int64) (res *MissionCompletion, err error) {
	defer track("mission_complete", &err)()

	address, err = requireEmail(address)
	if err != nil {
		return nil, err
	}

	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		m, err := activeMission(ctx, q, missionID)
		if err != nil {
			return err
		}
		um, err := userMission(ctx, q, address, m.ID)
		if err != nil {
			return err
		}
		if um.Completions > 0 && !m.Repeatable {
			return conflictError("mission %q already completed", m.Name)
		}
		if !completable(m, um) {
			return validationError("mission %q not finished: %d/%d", m.Name, um.Progress, m.TargetCount)
		}

		now := s.deps.Now()
		um.Completions++
		um.PointsAwarded += m.Points
		um.CompletedAt = &now
		um.Status = model.MissionCompleted
		um.Progress = m.TargetCount
		if m.Repeatable {
			um.Progress = 0
		}
		if err := q.UpdateUserMission(ctx, um); err != nil {
			return err
		}

		res = &MissionCompletion{Mission: *m, UserMission: *um}
		if m.Points <= 0 {
			return nil
		}
		res.Earned, err = s.ledger.earn(ctx, q, Entry{
			Email:       address,
			Points:      m.Points,
			Type:        model.TransactionMission,
			Description: fmt.Sprintf("Mission: %s", m.Name),
			Amount:      decimal.Zero,
		})
		return err
	})
	if err != nil {
		return nil, missionError(err)
	}

	if res.Earned != nil {
		metrics.RecordPoints(res.Earned.Transaction.Points)
		for _, b := range res.Earned.Bonuses {
			metrics.RecordPoints(b.BonusPoints)
		}
	}
	s.deps.Logger.Info("mission completed",
		zap.String("email", address),
		zap.String("mission", res.Mission.Slug),
		zap.Int64("points", res.Mission.Points))
	return res, nil
}

// CompleteBySlug completes the active mission with that slug.
func (s *MissionService) CompleteBySlug(ctx context.Context, address, slug string) (*MissionCompletion, error) {
	missions, err := s.deps.Store.ListMissions(ctx)
	if err != nil {
		return nil, internalError("failed to list missions", err)
	}
	for _, m := range missions {
		if m.Slug == slug {
			return s.Complete(ctx, address, m.ID)
		}
	}
	return nil, notFoundError("mission %q not found", slug)
}

// completable reports whether um has reached the target. Single-step
// missions are completed directly.
func completable(m *model.Mission, um *model.UserMission) bool {
	if um.Completions > 0 && !m.Repeatable {
		return false
	}
	return m.TargetCount <= 1 || um.Progress >= m.TargetCount
}

func activeMission(ctx context.Context, q repository.Queries, id int64) (*model.Mission, error) {
	m, err := q.GetMission(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("mission %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, notFoundError("mission %d is not active", id)
	}
	return m, nil
}

// userMission loads or creates the progress row.
func userMission(ctx context.Context, q repository.Queries, address string, missionID int64) (*model.UserMission, error) {
	um, err := q.GetUserMission(ctx, address, missionID)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return um, err
	}
	um = &model.UserMission{Email: address, MissionID: missionID, Status: model.MissionAvailable}
	if err := q.CreateUserMission(ctx, um); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return nil, err
	}
	return q.GetUserMission(ctx, address, missionID)
}

func missionError(err error) error {
	if errors.Is(err, repository.ErrStale) {
		return conflictError("mission updated concurrently, please retry")
	}
	return ledgerError(err)
}

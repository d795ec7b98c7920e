/**
 * @description
 * Scheduled job implementations for the onboarding service.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/transferhub/onboarding-service/internal/domain"
)

// SyncRunner is the slice of the synchronizer the reconciliation job needs.
type SyncRunner interface {
	Sync(ctx context.Context, userID string) (*SyncResult, error)
}

// CandidateLister picks the users whose provider state still needs polling.
type CandidateLister interface {
	ListSyncCandidates(ctx context.Context, limit int) ([]domain.SyncCandidate, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	candidates CandidateLister
	sync       SyncRunner
	logger     *slog.Logger
	batchSize  int
}

// NewJobs creates a new Jobs runner.
func NewJobs(candidates CandidateLister, sync SyncRunner, logger *slog.Logger, batchSize int) *Jobs {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Jobs{
		candidates: candidates,
		sync:       sync,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// ReconcileVerificationStatuses polls the provider for every user whose
// verification is still in flight or whose resources are not fully
// provisioned. Each user is an independently-retryable unit: one failure
// never stops the batch.
func (j *Jobs) ReconcileVerificationStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	candidates, err := j.candidates.ListSyncCandidates(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("failed to list sync candidates", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	j.logger.Info("starting verification status reconciliation", "candidates", len(candidates))

	var synced, transitioned, failed int
	for _, candidate := range candidates {
		result, err := j.sync.Sync(ctx, candidate.UserID)
		if err != nil {
			j.logger.Error("sync failed", "user_id", candidate.UserID, "error", err)
			failed++
			continue
		}
		synced++
		if result.Transitioned {
			transitioned++
		}
	}

	j.logger.Info("verification status reconciliation finished",
		"synced", synced, "transitioned", transitioned, "failed", failed)
}

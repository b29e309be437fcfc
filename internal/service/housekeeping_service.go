package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/repository"
	"aifit/coach-app/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HousekeepingService archives plans and their originating generation
// records once their validity window (the plan's week) has elapsed.
// Archiving is non-destructive: only the archive flag and timestamp are set,
// and conversation history is always retained.
type HousekeepingService interface {
	// ArchiveStale archives the owner's expired plans and records. Returns
	// the number of plans archived.
	ArchiveStale(ctx context.Context, ownerID primitive.ObjectID) (int, error)
}

// archiveSnapshot is the JSON document exported to object storage when a
// plan is archived.
type archiveSnapshot struct {
	Plan   *domain.Plan             `json:"plan"`
	Record *domain.GenerationRecord `json:"record,omitempty"`
}

// housekeepingService implements the HousekeepingService interface.
type housekeepingService struct {
	planRepo   repository.PlanRepository
	recordRepo repository.GenerationRecordRepository
	archives   storage.ArchiveStorage // optional; nil disables snapshot export
	now        func() time.Time
}

// NewHousekeepingService creates a new instance of housekeepingService.
// archives may be nil, in which case no snapshots are exported.
func NewHousekeepingService(
	planRepo repository.PlanRepository,
	recordRepo repository.GenerationRecordRepository,
	archives storage.ArchiveStorage,
) HousekeepingService {
	return &housekeepingService{
		planRepo:   planRepo,
		recordRepo: recordRepo,
		archives:   archives,
		now:        time.Now,
	}
}

// ArchiveStale archives every plan of the owner whose week has passed, along
// with the generation record that produced it (matched via resultPlanId).
func (s *housekeepingService) ArchiveStale(ctx context.Context, ownerID primitive.ObjectID) (int, error) {
	if ownerID == primitive.NilObjectID {
		return 0, errors.New("owner ID is required")
	}
	now := s.now().UTC()

	plans, err := s.planRepo.GetByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	// Map resultPlanId -> record so each stale plan can drag its originating
	// record into the archive with it.
	recordsByPlan, err := s.completedRecordsByPlan(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	archived := 0
	for i := range plans {
		plan := &plans[i]
		if plan.IsArchived || !plan.Expired(now) {
			continue
		}

		if err := s.planRepo.Archive(ctx, plan.ID, now); err != nil {
			log.Printf("ERROR: Failed to archive plan %s: %v", plan.ID.Hex(), err)
			continue
		}
		plan.IsArchived = true
		plan.ArchivedAt = &now
		archived++

		record := recordsByPlan[plan.ID]
		if record != nil && !record.IsArchived {
			if err := s.recordRepo.Archive(ctx, record.ID, now); err != nil {
				log.Printf("ERROR: Failed to archive record %s: %v", record.ID.Hex(), err)
			}
		}

		s.exportSnapshot(ctx, ownerID, plan, record)
	}
	return archived, nil
}

func (s *housekeepingService) completedRecordsByPlan(ctx context.Context, ownerID primitive.ObjectID) (map[primitive.ObjectID]*domain.GenerationRecord, error) {
	completed, err := s.recordRepo.GetByOwnerAndPhase(ctx, ownerID, domain.PhaseCompleted)
	if err != nil {
		return nil, err
	}
	byPlan := make(map[primitive.ObjectID]*domain.GenerationRecord, len(completed))
	for i := range completed {
		if completed[i].ResultPlanID != nil {
			byPlan[*completed[i].ResultPlanID] = &completed[i]
		}
	}
	return byPlan, nil
}

// exportSnapshot uploads the archived documents to object storage.
// Best-effort: the documents stay in the database regardless.
func (s *housekeepingService) exportSnapshot(ctx context.Context, ownerID primitive.ObjectID, plan *domain.Plan, record *domain.GenerationRecord) {
	if s.archives == nil {
		return
	}
	body, err := json.Marshal(archiveSnapshot{Plan: plan, Record: record})
	if err != nil {
		log.Printf("ERROR: Failed to marshal archive snapshot for plan %s: %v", plan.ID.Hex(), err)
		return
	}
	objectKey := fmt.Sprintf("archives/%s/%s.json", ownerID.Hex(), uuid.NewString())
	if err := s.archives.PutSnapshot(ctx, objectKey, body); err != nil {
		log.Printf("WARN: Snapshot export failed for plan %s: %v", plan.ID.Hex(), err)
	}
}

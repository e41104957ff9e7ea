package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kurtismassey/project-stargate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepositoryImpl handles database operations for session records and
// stage snapshots using GORM.
type SessionRepositoryImpl struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db}
}

// GetOrCreate loads the record for a session ID, creating a fresh Active
// record on first sight. Session IDs are caller-supplied.
func (r *SessionRepositoryImpl) GetOrCreate(ctx context.Context, id string) (*models.SessionRecord, error) {
	var record models.SessionRecord

	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	record = models.SessionRecord{
		ID:           id,
		CurrentStage: models.MinStage,
		Status:       models.StatusActive,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &record, nil
}

// GetByID retrieves a session record.
func (r *SessionRepositoryImpl) GetByID(ctx context.Context, id string) (*models.SessionRecord, error) {
	var record models.SessionRecord

	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &record, nil
}

// List returns session records, newest first.
func (r *SessionRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*models.SessionRecord, error) {
	var records []*models.SessionRecord

	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return records, nil
}

// UpdateStage persists the authoritative stage for a session.
func (r *SessionRepositoryImpl) UpdateStage(ctx context.Context, id string, stage int) error {
	err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", id).
		Update("current_stage", stage).Error
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return nil
}

// UpdateStatus persists a lifecycle transition.
func (r *SessionRepositoryImpl) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// SetTargetImage records the assigned target image path. Set at most once.
func (r *SessionRepositoryImpl) SetTargetImage(ctx context.Context, id, path string) error {
	err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ? AND (target_image_path IS NULL OR target_image_path = '')", id).
		Update("target_image_path", path).Error
	if err != nil {
		return fmt.Errorf("failed to set target image: %w", err)
	}
	return nil
}

// SaveDetails replaces the accumulated detail set for a session.
func (r *SessionRepositoryImpl) SaveDetails(ctx context.Context, id string, details []string) error {
	err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", id).
		Select("details").
		Updates(&models.SessionRecord{Details: details}).Error
	if err != nil {
		return fmt.Errorf("failed to save details: %w", err)
	}
	return nil
}

// Complete writes the terminal record: status, summary, modelled image path
// and completion timestamp, in one update.
func (r *SessionRepositoryImpl) Complete(ctx context.Context, id, summary, modelledPath string, details []string) error {
	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", id).
		Select("status", "summary", "modelled_image_path", "details", "completed_at").
		Updates(&models.SessionRecord{
			Status:            models.StatusCompleted,
			Summary:           summary,
			ModelledImagePath: modelledPath,
			Details:           details,
			CompletedAt:       &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the latest canvas snapshot reference for one stage.
func (r *SessionRepositoryImpl) SaveSnapshot(ctx context.Context, sessionID string, stage int, ref string) error {
	snapshot := models.StageSnapshot{
		SessionID:   sessionID,
		StageNumber: stage,
		SnapshotRef: ref,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "stage_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"snapshot_ref", "updated_at"}),
		}).
		Create(&snapshot).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ClearSnapshot eagerly wipes the persisted snapshot for a stage. Clearing
// and snapshot persistence are decoupled on the wire, so a clear with no
// snapshot row is fine.
func (r *SessionRepositoryImpl) ClearSnapshot(ctx context.Context, sessionID string, stage int) error {
	err := r.db.WithContext(ctx).
		Model(&models.StageSnapshot{}).
		Where("session_id = ? AND stage_number = ?", sessionID, stage).
		Update("snapshot_ref", "").Error
	if err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// GetSnapshots returns the last-known snapshot ref per stage.
func (r *SessionRepositoryImpl) GetSnapshots(ctx context.Context, sessionID string) (map[int]string, error) {
	var snapshots []models.StageSnapshot

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}

	refs := make(map[int]string, len(snapshots))
	for _, s := range snapshots {
		if s.SnapshotRef != "" {
			refs[s.StageNumber] = s.SnapshotRef
		}
	}
	return refs, nil
}

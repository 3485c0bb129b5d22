package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// studyFeatureRow maps the study_features_cache table.
type studyFeatureRow struct {
	NotebookID  string    `gorm:"column:notebook_id;primaryKey"`
	FeatureType string    `gorm:"column:feature_type;primaryKey"`
	Content     string    `gorm:"column:content"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (studyFeatureRow) TableName() string {
	return "study_features_cache"
}

// PostgresStore keeps entries in study_features_cache.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore returns a store backed by the study_features_cache table.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, notebookID string, feature FeatureType) (*Entry, error) {
	var row studyFeatureRow
	err := s.db.WithContext(ctx).
		Where("notebook_id = ? AND feature_type = ?", notebookID, string(feature)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Entry{
		NotebookID:  row.NotebookID,
		FeatureType: FeatureType(row.FeatureType),
		Content:     row.Content,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// Put inserts or, on key conflict, replaces content and updated_at.
func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	row := studyFeatureRow{
		NotebookID:  entry.NotebookID,
		FeatureType: string(entry.FeatureType),
		Content:     entry.Content,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notebook_id"}, {Name: "feature_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *PostgresStore) Delete(ctx context.Context, notebookID string, feature FeatureType) error {
	return s.db.WithContext(ctx).
		Where("notebook_id = ? AND feature_type = ?", notebookID, string(feature)).
		Delete(&studyFeatureRow{}).Error
}

func (s *PostgresStore) DeleteNotebook(ctx context.Context, notebookID string) error {
	return s.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID).
		Delete(&studyFeatureRow{}).Error
}

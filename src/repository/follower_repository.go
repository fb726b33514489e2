package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"copytrader/src/database"
	"copytrader/src/model"
)

// FollowerRepository reads the leader/follower edge table. The edges are
// written by the profile service; this core only resolves fan-out targets.
type FollowerRepository struct {
	db *gorm.DB
}

func NewFollowerRepository() *FollowerRepository {
	return &FollowerRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *FollowerRepository) WithDB(db *gorm.DB) *FollowerRepository {
	return &FollowerRepository{db: db}
}

// ListCopiers returns followers whose edges currently derive copy orders
// (auto_copy on, not paused).
func (r *FollowerRepository) ListCopiers(ctx context.Context, leaderID uint) ([]model.FollowerRelationship, error) {
	var edges []model.FollowerRelationship

	err := r.db.WithContext(ctx).
		Where("leader_id = ? AND auto_copy = ? AND auto_copy_paused = ?", leaderID, true, false).
		Order("follower_id ASC").
		Find(&edges).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "FollowerRepository",
			"op":        "ListCopiers",
			"leader_id": leaderID,
		}).WithError(err).Error("Failed to list copiers")
		return nil, err
	}

	return edges, nil
}

// ListAlertTargets returns every follower that should receive notifications
// for the leader's trades: auto-copy and alert-only alike. Alerting and
// copying are independent preferences.
func (r *FollowerRepository) ListAlertTargets(ctx context.Context, leaderID uint) ([]model.FollowerRelationship, error) {
	var edges []model.FollowerRelationship

	err := r.db.WithContext(ctx).
		Where("leader_id = ? AND (alert_only = ? OR auto_copy = ?)", leaderID, true, true).
		Order("follower_id ASC").
		Find(&edges).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "FollowerRepository",
			"op":        "ListAlertTargets",
			"leader_id": leaderID,
		}).WithError(err).Error("Failed to list alert targets")
		return nil, err
	}

	return edges, nil
}

// FindEdge returns (nil, nil) when no relationship exists for the pair.
func (r *FollowerRepository) FindEdge(ctx context.Context, leaderID, followerID uint) (*model.FollowerRelationship, error) {
	var edge model.FollowerRelationship

	err := r.db.WithContext(ctx).
		Where("leader_id = ? AND follower_id = ?", leaderID, followerID).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":        "FollowerRepository",
			"op":          "FindEdge",
			"leader_id":   leaderID,
			"follower_id": followerID,
		}).WithError(err).Error("Failed to fetch follower edge")
		return nil, err
	}

	return &edge, nil
}

package moderation

import (
	"context"
	"time"

	"gamification/internal/db"

	"go.uber.org/zap"
)

// SweepStaging removes staged files left behind by reviewed requests whose
// post-review cleanup failed. Requests updated within maxAge are skipped.
func (s *Service) SweepStaging(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	var leftovers []db.GameEditRequest
	err := s.db.WithContext(ctx).
		Select("id", "request_prefix").
		Where("status <> ? AND request_prefix <> '' AND updated_at < ?", db.EditRequestPending, cutoff).
		Order("id asc").
		Find(&leftovers).Error
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range leftovers {
		if ctx.Err() != nil {
			return swept, ctx.Err()
		}
		req := &leftovers[i]
		if !s.discard(ctx, req.RequestPrefix) {
			continue
		}
		if err := s.db.WithContext(ctx).Model(&db.GameEditRequest{}).
			Where("id = ? AND request_prefix = ?", req.ID, req.RequestPrefix).
			UpdateColumn("request_prefix", "").Error; err != nil {
			s.log.Warn("clear request prefix failed", zap.Uint("request_id", req.ID), zap.Error(err))
			continue
		}
		swept++
	}
	return swept, nil
}

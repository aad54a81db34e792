package moderation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gamification/internal/apperr"
	"gamification/internal/auth"
	"gamification/internal/db"
	"gamification/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func newDraftPrefix(userID uint) string {
	return fmt.Sprintf("%s/%d/%s/", draftRootKey, userID, uuid.NewString())
}

func newDraftCode() string {
	return "draft_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// SaveDraft stores payload as the actor's worldcup draft. Every save stages
// its images under a fresh prefix; images staged by the previous save are
// carried over when the payload still references them.
func (s *Service) SaveDraft(ctx context.Context, actor auth.Identity, payload EditPayloadV1) (*db.WorldcupDraft, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthorized("authentication required")
	}
	if err := payload.validate(false); err != nil {
		return nil, err
	}

	var previous db.WorldcupDraft
	err := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID).First(&previous).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("load draft", err)
	}

	prefix := newDraftPrefix(actor.UserID)
	if err := s.stageDraftImages(ctx, prefix, previous.DraftPrefix, &payload); err != nil {
		s.discard(ctx, prefix)
		return nil, err
	}
	raw, err := payload.Marshal()
	if err != nil {
		s.discard(ctx, prefix)
		return nil, apperr.Internal("encode draft", err)
	}

	var (
		draft     db.WorldcupDraft
		oldPrefix string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if db.IsPostgres(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing db.WorldcupDraft
		err := query.Where("user_id = ?", actor.UserID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			draft = db.WorldcupDraft{
				UserID:      actor.UserID,
				DraftCode:   newDraftCode(),
				DraftPrefix: prefix,
				Payload:     datatypes.JSON(raw),
			}
			if err := tx.Create(&draft).Error; err != nil {
				if db.IsUniqueViolation(err) {
					return apperr.Conflict("draft was saved concurrently")
				}
				return apperr.Internal("create draft", err)
			}
			return nil
		}
		if err != nil {
			return apperr.Internal("load draft", err)
		}

		oldPrefix = existing.DraftPrefix
		if err := tx.Model(&existing).Updates(map[string]any{
			"draft_prefix": prefix,
			"payload":      datatypes.JSON(raw),
			"updated_at":   s.now(),
		}).Error; err != nil {
			return apperr.Internal("save draft", err)
		}
		return tx.First(&draft, existing.ID).Error
	})
	if err != nil {
		s.discard(ctx, prefix)
		return nil, err
	}
	if oldPrefix != "" && oldPrefix != prefix {
		s.discard(ctx, oldPrefix)
	}

	s.metrics.EditRequestAction("draft_saved")
	s.log.Debug("worldcup draft saved", zap.Uint("draft_id", draft.ID), zap.Uint("user_id", actor.UserID))
	return &draft, nil
}

// stageDraftImages stages image_data like a submission and copies references
// into the previous draft prefix over to prefix.
func (s *Service) stageDraftImages(ctx context.Context, prefix, previous string, payload *EditPayloadV1) error {
	for i := range payload.Items {
		item := &payload.Items[i]
		if item.ImageData != "" {
			key, err := s.stageImage(ctx, prefix, i, fmt.Sprintf("items[%d].image_data", i), item.ImageData)
			if err != nil {
				return err
			}
			item.ImageURL = key
			item.ImageData = ""
			continue
		}
		field := fmt.Sprintf("items[%d].image_url", i)
		switch {
		case item.ImageURL == "":
		case previous != "" && storage.HasPrefix(item.ImageURL, previous):
			dst, err := storage.JoinKey(prefix, fmt.Sprintf("item-%d%s", i, path.Ext(item.ImageURL)))
			if err != nil {
				return apperr.Internal("build staging key", err)
			}
			if err := s.store.Copy(ctx, item.ImageURL, dst); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return apperr.Field(field, "staged image is missing")
				}
				return apperr.Internal("carry draft image", err)
			}
			item.ImageURL = dst
		case isStagingKey(item.ImageURL):
			return apperr.Field(field, "image_url cannot reference staged uploads")
		}
	}
	return nil
}

// Draft returns the actor's saved worldcup draft.
func (s *Service) Draft(ctx context.Context, actor auth.Identity) (*db.WorldcupDraft, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthorized("authentication required")
	}
	var draft db.WorldcupDraft
	if err := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID).First(&draft).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("draft not found")
		}
		return nil, apperr.Internal("load draft", err)
	}
	return &draft, nil
}

// DiscardDraft deletes the actor's draft and its staged images.
func (s *Service) DiscardDraft(ctx context.Context, actor auth.Identity) error {
	draft, err := s.Draft(ctx, actor)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("id = ?", draft.ID).Delete(&db.WorldcupDraft{})
	if res.Error != nil {
		return apperr.Internal("delete draft", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("draft not found")
	}
	s.discard(ctx, draft.DraftPrefix)
	s.metrics.EditRequestAction("draft_discarded")
	return nil
}

// Package moderation implements the edit-request workflow: owners stage a
// proposed change to a game, staff approve or reject it.
package moderation

import (
	"context"
	"errors"
	"time"

	"gamification/internal/apperr"
	"gamification/internal/auth"
	"gamification/internal/db"
	"gamification/internal/imagecheck"
	"gamification/internal/metrics"
	"gamification/internal/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// ContentListener is told after an approval changed a game's live content.
type ContentListener interface {
	GameContentChanged(ctx context.Context, gameID uint)
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	store    storage.Store
	images   *imagecheck.Checker
	metrics  *metrics.Metrics
	listener ContentListener
	now      func() time.Time
}

// NewService builds the workflow. listener may be nil.
func NewService(conn *gorm.DB, log *zap.Logger, store storage.Store, images *imagecheck.Checker, m *metrics.Metrics, listener ContentListener) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       conn,
		log:      log,
		store:    store,
		images:   images,
		metrics:  m,
		listener: listener,
		now:      time.Now,
	}
}

// Submit stages payload as the actor's edit request for a game, replacing any
// earlier request by the same actor.
func (s *Service) Submit(ctx context.Context, actor auth.Identity, gameID uint, payload EditPayloadV1) (*db.GameEditRequest, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthorized("authentication required")
	}
	var game db.Game
	if err := s.db.WithContext(ctx).First(&game, gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("game not found")
		}
		return nil, apperr.Internal("load game", err)
	}
	if !game.OwnedBy(actor.UserID) && !actor.IsStaff {
		return nil, apperr.Forbidden("only the game owner or staff can submit edits")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	prefix := newRequestPrefix(game.ID)
	if err := s.stageImages(ctx, prefix, &payload); err != nil {
		s.discard(ctx, prefix)
		return nil, err
	}
	raw, err := payload.Marshal()
	if err != nil {
		s.discard(ctx, prefix)
		return nil, apperr.Internal("encode payload", err)
	}

	var (
		req       db.GameEditRequest
		oldPrefix string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockRequest(tx, game.ID, actor.UserID)
		if err != nil {
			return err
		}
		if existing == nil {
			fresh := db.GameEditRequest{
				GameID:        game.ID,
				UserID:        actor.UserID,
				Status:        db.EditRequestPending,
				Payload:       datatypes.JSON(raw),
				RequestPrefix: prefix,
			}
			err := tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&fresh).Error })
			switch {
			case err == nil:
				req = fresh
				return appendHistory(tx, &req, actor.UserRef(), db.EditActionSubmitted, req.Payload)
			case !db.IsUniqueViolation(err):
				return apperr.Internal("save edit request", err)
			}
			// A concurrent first submission inserted the row.
			existing, err = lockRequest(tx, game.ID, actor.UserID)
			if err != nil {
				return err
			}
			if existing == nil {
				return apperr.Internal("reload edit request", errors.New("edit request missing after conflict"))
			}
		}

		oldPrefix = existing.RequestPrefix
		if err := tx.Model(existing).Updates(map[string]any{
			"payload":        datatypes.JSON(raw),
			"status":         db.EditRequestPending,
			"request_prefix": prefix,
			"reviewed_by_id": nil,
			"reviewed_at":    nil,
			"updated_at":     s.now(),
		}).Error; err != nil {
			return apperr.Internal("save edit request", err)
		}
		if err := tx.First(&req, existing.ID).Error; err != nil {
			return apperr.Internal("reload edit request", err)
		}
		return appendHistory(tx, &req, actor.UserRef(), db.EditActionSubmitted, req.Payload)
	})
	if err != nil {
		s.discard(ctx, prefix)
		return nil, err
	}
	if oldPrefix != "" && oldPrefix != prefix {
		s.discard(ctx, oldPrefix)
	}

	s.metrics.EditRequestAction("submitted")
	s.log.Info("edit request submitted",
		zap.Uint("request_id", req.ID),
		zap.Uint("game_id", req.GameID),
		zap.Uint("user_id", req.UserID),
	)
	return &req, nil
}

// Approve applies a pending request to the live game in one transaction.
func (s *Service) Approve(ctx context.Context, reviewer auth.Identity, requestID uint) (*db.GameEditRequest, error) {
	if err := requireStaff(reviewer); err != nil {
		return nil, err
	}
	var (
		req      *db.GameEditRequest
		resolver *fileResolver
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, requestID)
		if err != nil {
			return err
		}
		payload, err := Decode(req.Payload)
		if err != nil {
			return err
		}
		if err := payload.Validate(); err != nil {
			return err
		}

		var game db.Game
		if err := tx.First(&game, req.GameID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("game not found")
			}
			return apperr.Internal("load game", err)
		}
		if err := applyScalars(tx, &game, payload); err != nil {
			return err
		}
		resolver = newFileResolver(s.store, req.RequestPrefix, game.StoragePrefix)
		if payload.Items != nil {
			if err := s.reconcileItems(ctx, tx, &game, req, payload.Items, resolver); err != nil {
				return err
			}
		}
		if err := markReviewed(tx, req, db.EditRequestApproved, reviewer, s.now()); err != nil {
			return err
		}
		return appendHistory(tx, req, reviewer.UserRef(), db.EditActionApproved, req.Payload)
	})
	if err != nil {
		if resolver != nil {
			if rbErr := resolver.rollback(ctx); rbErr != nil {
				s.log.Error("remove copied files after failed approval", zap.Uint("request_id", requestID), zap.Error(rbErr))
			}
		}
		return nil, err
	}

	s.finish(ctx, req)
	if s.listener != nil {
		s.listener.GameContentChanged(ctx, req.GameID)
	}
	s.metrics.EditRequestAction("approved")
	s.log.Info("edit request approved",
		zap.Uint("request_id", req.ID),
		zap.Uint("game_id", req.GameID),
		zap.Uint("reviewer_id", reviewer.UserID),
	)
	return s.Get(ctx, req.ID)
}

// Reject closes a pending request without touching live content.
func (s *Service) Reject(ctx context.Context, reviewer auth.Identity, requestID uint) (*db.GameEditRequest, error) {
	if err := requireStaff(reviewer); err != nil {
		return nil, err
	}
	var req *db.GameEditRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, requestID)
		if err != nil {
			return err
		}
		if err := markReviewed(tx, req, db.EditRequestRejected, reviewer, s.now()); err != nil {
			return err
		}
		return appendHistory(tx, req, reviewer.UserRef(), db.EditActionRejected, req.Payload)
	})
	if err != nil {
		return nil, err
	}

	s.finish(ctx, req)
	s.metrics.EditRequestAction("rejected")
	s.log.Info("edit request rejected",
		zap.Uint("request_id", req.ID),
		zap.Uint("game_id", req.GameID),
		zap.Uint("reviewer_id", reviewer.UserID),
	)
	return s.Get(ctx, req.ID)
}

// finish discards the staged files of a reviewed request and clears its
// prefix. Leftovers are picked up by the staging sweeper.
func (s *Service) finish(ctx context.Context, req *db.GameEditRequest) {
	if req.RequestPrefix == "" || !s.discard(ctx, req.RequestPrefix) {
		return
	}
	if err := s.db.WithContext(ctx).Model(&db.GameEditRequest{}).
		Where("id = ? AND request_prefix = ?", req.ID, req.RequestPrefix).
		Update("request_prefix", "").Error; err != nil {
		s.log.Warn("clear request prefix failed", zap.Uint("request_id", req.ID), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, requestID uint) (*db.GameEditRequest, error) {
	var req db.GameEditRequest
	err := s.db.WithContext(ctx).
		Preload("Game").
		Preload("User").
		Preload("History", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		First(&req, requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("edit request not found")
		}
		return nil, apperr.Internal("load edit request", err)
	}
	return &req, nil
}

type ListFilter struct {
	Status  db.EditRequestStatus
	GameID  uint
	Page    int
	PerPage int
}

// List returns one page of requests, most recently updated first, and the
// total number of matches.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]db.GameEditRequest, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	query := s.db.WithContext(ctx).Model(&db.GameEditRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.GameID != 0 {
		query = query.Where("game_id = ?", filter.GameID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("count edit requests", err)
	}
	var requests []db.GameEditRequest
	if err := query.
		Preload("Game").
		Preload("User").
		Order("updated_at desc").
		Order("id desc").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&requests).Error; err != nil {
		return nil, 0, apperr.Internal("list edit requests", err)
	}
	return requests, total, nil
}

// Mine returns the actor's own request for a game.
func (s *Service) Mine(ctx context.Context, actor auth.Identity, gameID uint) (*db.GameEditRequest, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthorized("authentication required")
	}
	var req db.GameEditRequest
	err := s.db.WithContext(ctx).
		Preload("History", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Where("game_id = ? AND user_id = ?", gameID, actor.UserID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("edit request not found")
		}
		return nil, apperr.Internal("load edit request", err)
	}
	return &req, nil
}

func requireStaff(reviewer auth.Identity) error {
	if !reviewer.Authenticated() {
		return apperr.Unauthorized("authentication required")
	}
	if !reviewer.IsStaff {
		return apperr.Forbidden("staff only")
	}
	return nil
}

// lockPending loads a request for review and fails unless it is PENDING.
// lockRequest loads the actor's request for a game under a row lock, or nil.
func lockRequest(tx *gorm.DB, gameID, userID uint) (*db.GameEditRequest, error) {
	query := tx
	if db.IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var req db.GameEditRequest
	err := query.Where("game_id = ? AND user_id = ?", gameID, userID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("load edit request", err)
	}
	return &req, nil
}

func lockPending(tx *gorm.DB, requestID uint) (*db.GameEditRequest, error) {
	query := tx
	if db.IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var req db.GameEditRequest
	if err := query.First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("edit request not found")
		}
		return nil, apperr.Internal("load edit request", err)
	}
	if req.Status != db.EditRequestPending {
		return nil, apperr.Conflict("edit request already processed")
	}
	return &req, nil
}

func markReviewed(tx *gorm.DB, req *db.GameEditRequest, status db.EditRequestStatus, reviewer auth.Identity, at time.Time) error {
	err := tx.Model(&db.GameEditRequest{}).Where("id = ?", req.ID).Updates(map[string]any{
		"status":         status,
		"reviewed_by_id": reviewer.UserID,
		"reviewed_at":    at,
	}).Error
	if err != nil {
		return apperr.Internal("update edit request", err)
	}
	req.Status = status
	req.ReviewedByID = reviewer.UserRef()
	req.ReviewedAt = &at
	return nil
}

func appendHistory(tx *gorm.DB, req *db.GameEditRequest, userID *uint, action db.EditRequestAction, payload datatypes.JSON) error {
	entry := db.GameEditRequestHistory{
		RequestID: req.ID,
		GameID:    req.GameID,
		UserID:    userID,
		Action:    action,
		Payload:   payload,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return apperr.Internal("append edit request history", err)
	}
	return nil
}

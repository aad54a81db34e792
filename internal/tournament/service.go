// Package tournament tallies worldcup pick logs into rankings and records the
// terminal result of each play-through.
package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gamification/internal/apperr"
	"gamification/internal/auth"
	"gamification/internal/config"
	"gamification/internal/db"
	"gamification/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxResultTitleLen = 100

type Options struct {
	// ItemScope is config.ItemScopeAll or config.ItemScopeActive.
	ItemScope string
	Cache     SummaryCache
	CacheTTL  time.Duration
	Metrics   *metrics.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	metrics   *metrics.Metrics
	cache     SummaryCache
	cacheTTL  time.Duration
	itemScope string
	now       func() time.Time
}

func NewService(conn *gorm.DB, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	scope := opts.ItemScope
	if scope != config.ItemScopeActive {
		scope = config.ItemScopeAll
	}
	cache := opts.Cache
	if opts.CacheTTL <= 0 {
		cache = nil
	}
	return &Service{
		db:        conn,
		log:       log,
		metrics:   opts.Metrics,
		cache:     cache,
		cacheTTL:  opts.CacheTTL,
		itemScope: scope,
		now:       time.Now,
	}
}

// ComputeSummary ranks the items of a game by how often they were selected,
// across every play-through or only choiceID when given. It returns nil
// without error when no pick logs exist in scope.
func (s *Service) ComputeSummary(ctx context.Context, gameID uint, choiceID *uint) (*Summary, error) {
	conn := s.db.WithContext(ctx)
	var game db.Game
	if err := conn.Select("id").First(&game, gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("game not found")
		}
		return nil, apperr.Internal("load game", err)
	}

	global := choiceID == nil
	if global && s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, gameID)
		switch {
		case err != nil:
			s.metrics.SummaryCache("error")
			s.log.Warn("summary cache read failed", zap.Uint("game_id", gameID), zap.Error(err))
		case ok:
			s.metrics.SummaryCache("hit")
			return cached, nil
		default:
			s.metrics.SummaryCache("miss")
		}
	}

	picks := conn.Model(&db.WorldcupPickLog{}).Where("game_id = ?", gameID)
	if choiceID != nil {
		picks = picks.Where("choice_id = ?", *choiceID)
	}
	var pickCount int64
	if err := picks.Count(&pickCount).Error; err != nil {
		return nil, apperr.Internal("count picks", err)
	}
	if pickCount == 0 {
		return nil, nil
	}

	items, err := s.scopedItems(conn, gameID)
	if err != nil {
		return nil, apperr.Internal("load items", err)
	}
	wins, err := countWins(conn, gameID, choiceID)
	if err != nil {
		return nil, apperr.Internal("count wins", err)
	}

	summary := buildSummary(gameID, choiceID, items, wins)
	if global && s.cache != nil {
		if err := s.cache.Set(ctx, gameID, summary, s.cacheTTL); err != nil {
			s.log.Warn("summary cache write failed", zap.Uint("game_id", gameID), zap.Error(err))
		}
	}
	return summary, nil
}

func (s *Service) scopedItems(conn *gorm.DB, gameID uint) ([]db.GameItem, error) {
	query := conn.Where("game_id = ?", gameID)
	if s.itemScope == config.ItemScopeActive {
		query = query.Where("is_active = ? AND is_blocked = ?", true, false)
	}
	var items []db.GameItem
	err := query.Order("sort_order asc").Order("id asc").Find(&items).Error
	return items, err
}

func countWins(conn *gorm.DB, gameID uint, choiceID *uint) (map[uint]int, error) {
	type winRow struct {
		ItemID uint
		Wins   int
	}
	query := conn.Model(&db.WorldcupPickLog{}).
		Select("selected_item_id AS item_id, COUNT(*) AS wins").
		Where("game_id = ? AND selected_item_id IS NOT NULL", gameID)
	if choiceID != nil {
		query = query.Where("choice_id = ?", *choiceID)
	}
	var rows []winRow
	if err := query.Group("selected_item_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	wins := make(map[uint]int, len(rows))
	for _, row := range rows {
		wins[row.ItemID] = row.Wins
	}
	return wins, nil
}

type StartSessionInput struct {
	GameID    uint
	Actor     auth.Identity
	Source    string
	Referer   string
	UserAgent string
	IP        string
}

// StartSession opens a play-through of an active game.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*db.GameChoiceLog, error) {
	conn := s.db.WithContext(ctx)
	var game db.Game
	if err := conn.First(&game, in.GameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Field("game_id", "game not found")
		}
		return nil, apperr.Internal("load game", err)
	}
	if game.Status != db.GameStatusActive {
		return nil, apperr.Field("game_id", "game is not active")
	}
	now := s.now()
	choice := db.GameChoiceLog{
		GameID:       game.ID,
		UserID:       in.Actor.UserRef(),
		SessionToken: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Source:       truncate(in.Source, 50),
		RefererURL:   truncate(in.Referer, 255),
		UserAgent:    truncate(in.UserAgent, 255),
		IPAddress:    truncate(in.IP, 45),
		StartedAt:    now,
	}
	if err := conn.Create(&choice).Error; err != nil {
		return nil, apperr.Internal("create choice log", err)
	}
	return &choice, nil
}

type RecordPickInput struct {
	ChoiceID       uint
	GameID         uint
	LeftItemID     *uint
	RightItemID    *uint
	SelectedItemID *uint
	StepIndex      int
}

// RecordPick appends one pairwise decision to a play-through.
func (s *Service) RecordPick(ctx context.Context, in RecordPickInput) (*db.WorldcupPickLog, error) {
	conn := s.db.WithContext(ctx)
	if in.StepIndex < 0 {
		return nil, apperr.Field("step_index", "step_index must be zero or greater")
	}
	choice, err := loadChoice(conn, in.ChoiceID, false)
	if err != nil {
		return nil, err
	}
	if err := checkGame(conn, in.GameID); err != nil {
		return nil, err
	}
	if choice.GameID != in.GameID {
		return nil, apperr.Field("choice_id", "choice log does not belong to this game")
	}

	refs := []struct {
		field string
		id    *uint
	}{
		{"left_item_id", in.LeftItemID},
		{"right_item_id", in.RightItemID},
		{"selected_item_id", in.SelectedItemID},
	}
	fields := map[string]string{}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		ok, err := itemInGame(conn, in.GameID, *ref.id)
		if err != nil {
			return nil, apperr.Internal("load item", err)
		}
		if !ok {
			fields[ref.field] = "item does not belong to this game"
		}
	}
	if len(fields) > 0 {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "invalid pick", Fields: fields}
	}
	if in.LeftItemID != nil && in.RightItemID != nil && in.SelectedItemID != nil {
		if *in.SelectedItemID != *in.LeftItemID && *in.SelectedItemID != *in.RightItemID {
			return nil, apperr.Field("selected_item_id", "selected item must be the left or right item")
		}
	}

	pick := db.WorldcupPickLog{
		ChoiceID:       choice.ID,
		GameID:         in.GameID,
		LeftItemID:     in.LeftItemID,
		RightItemID:    in.RightItemID,
		SelectedItemID: in.SelectedItemID,
		StepIndex:      in.StepIndex,
		CreatedAt:      s.now(),
	}
	if err := conn.Create(&pick).Error; err != nil {
		return nil, apperr.Internal("create pick log", err)
	}
	s.metrics.PickRecorded()
	s.invalidateSummary(ctx, in.GameID)
	return &pick, nil
}

// GameContentChanged drops the cached global summary after the item set of a
// game was edited.
func (s *Service) GameContentChanged(ctx context.Context, gameID uint) {
	s.invalidateSummary(ctx, gameID)
}

func (s *Service) invalidateSummary(ctx context.Context, gameID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, gameID); err != nil {
		s.log.Warn("summary cache invalidate failed", zap.Uint("game_id", gameID), zap.Error(err))
	}
}

type RecordResultInput struct {
	ChoiceID       uint
	GameID         uint
	WinnerItemID   *uint
	ResultTitle    string
	ResultCode     string
	ResultImageURL string
	ShareURL       string
	ResultPayload  json.RawMessage
}

// RecordResult stores the single terminal result of a play-through and stamps
// its finish time if it is not set yet.
func (s *Service) RecordResult(ctx context.Context, in RecordResultInput) (*db.GameResult, error) {
	title := strings.TrimSpace(in.ResultTitle)
	if title == "" {
		return nil, apperr.Field("result_title", "result_title is required")
	}
	if len([]rune(title)) > maxResultTitleLen {
		return nil, apperr.Field("result_title", "result_title must be at most 100 characters")
	}
	var payload datatypes.JSON
	if len(in.ResultPayload) > 0 && string(in.ResultPayload) != "null" {
		if !json.Valid(in.ResultPayload) {
			return nil, apperr.Field("result_payload", "result_payload must be valid JSON")
		}
		payload = datatypes.JSON(in.ResultPayload)
	}

	var result db.GameResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		choice, err := loadChoice(tx, in.ChoiceID, true)
		if err != nil {
			return err
		}
		if err := checkGame(tx, in.GameID); err != nil {
			return err
		}
		if choice.GameID != in.GameID {
			return apperr.Field("choice_id", "choice log does not belong to this game")
		}
		var existing int64
		if err := tx.Model(&db.GameResult{}).Where("choice_id = ?", choice.ID).Count(&existing).Error; err != nil {
			return apperr.Internal("check result", err)
		}
		if existing > 0 {
			return apperr.Conflict("result already recorded for this choice log")
		}
		if in.WinnerItemID != nil {
			ok, err := itemInGame(tx, in.GameID, *in.WinnerItemID)
			if err != nil {
				return apperr.Internal("load item", err)
			}
			if !ok {
				return apperr.Field("winner_item_id", "item does not belong to this game")
			}
		}

		now := s.now()
		result = db.GameResult{
			ChoiceID:       choice.ID,
			GameID:         in.GameID,
			WinnerItemID:   in.WinnerItemID,
			ResultTitle:    title,
			ResultCode:     truncate(in.ResultCode, 50),
			ResultImageURL: truncate(in.ResultImageURL, 255),
			ShareURL:       truncate(in.ShareURL, 255),
			ResultPayload:  payload,
			CreatedAt:      now,
		}
		if err := tx.Create(&result).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("result already recorded for this choice log")
			}
			return apperr.Internal("create result", err)
		}
		if err := tx.Model(&db.GameChoiceLog{}).
			Where("id = ? AND finished_at IS NULL", choice.ID).
			Update("finished_at", now).Error; err != nil {
			return apperr.Internal("stamp finished_at", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ResultRecorded()
	s.log.Info("game result recorded",
		zap.Uint("result_id", result.ID),
		zap.Uint("choice_id", result.ChoiceID),
		zap.Uint("game_id", result.GameID),
	)
	return &result, nil
}

type ResultView struct {
	ID             uint           `json:"id"`
	ChoiceID       uint           `json:"choice_id"`
	GameID         uint           `json:"game_id"`
	GameType       db.GameType    `json:"game_type"`
	WinnerItemID   *uint          `json:"winner_item_id"`
	ResultTitle    string         `json:"result_title"`
	ResultCode     string         `json:"result_code"`
	ResultImageURL string         `json:"result_image_url"`
	ShareURL       string         `json:"share_url"`
	ResultPayload  map[string]any `json:"result_payload"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ResultDetail returns the result of a play-through. For worldcup games the
// payload carries the ranking of that play-through, computed on read.
func (s *Service) ResultDetail(ctx context.Context, choiceID uint) (*ResultView, error) {
	var result db.GameResult
	err := s.db.WithContext(ctx).Preload("Game").Where("choice_id = ?", choiceID).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("result not found")
		}
		return nil, apperr.Internal("load result", err)
	}

	view := &ResultView{
		ID:             result.ID,
		ChoiceID:       result.ChoiceID,
		GameID:         result.GameID,
		WinnerItemID:   result.WinnerItemID,
		ResultTitle:    result.ResultTitle,
		ResultCode:     result.ResultCode,
		ResultImageURL: result.ResultImageURL,
		ShareURL:       result.ShareURL,
		ResultPayload:  storedPayload(result.ResultPayload),
		CreatedAt:      result.CreatedAt,
	}
	if result.Game != nil {
		view.GameType = result.Game.Type
	}
	if view.GameType != db.GameTypeWorldCup {
		return view, nil
	}

	summary, err := s.ComputeSummary(ctx, result.GameID, &result.ChoiceID)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		view.ResultPayload["ranking"] = summary.Ranking
		view.ResultPayload["champion"] = summary.Champion
		view.ResultPayload["round"] = summary.Round
		view.ResultPayload["total_items"] = summary.TotalItems
	}
	return view, nil
}

// storedPayload decodes the submitted payload into a map. Non-object payloads
// are kept under "value".
func storedPayload(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err == nil && out != nil {
		return out
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return map[string]any{}
	}
	return map[string]any{"value": value}
}

func loadChoice(conn *gorm.DB, id uint, lock bool) (*db.GameChoiceLog, error) {
	query := conn
	if lock && db.IsPostgres(conn) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var choice db.GameChoiceLog
	if err := query.First(&choice, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Field("choice_id", "choice log not found")
		}
		return nil, apperr.Internal("load choice log", err)
	}
	return &choice, nil
}

func checkGame(conn *gorm.DB, id uint) error {
	var count int64
	if err := conn.Model(&db.Game{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperr.Internal("load game", err)
	}
	if count == 0 {
		return apperr.Field("game_id", "game not found")
	}
	return nil
}

func itemInGame(conn *gorm.DB, gameID, itemID uint) (bool, error) {
	var count int64
	err := conn.Model(&db.GameItem{}).Where("id = ? AND game_id = ?", itemID, gameID).Count(&count).Error
	return count > 0, err
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gamification/internal/apperr"
	"gamification/internal/db"
	"gamification/internal/moderation"
	"gamification/internal/storage"
	"gamification/internal/tournament"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type sessionRequest struct {
	GameID uint   `json:"game_id" binding:"required"`
	Source string `json:"source" binding:"max=50"`
}

type pickRequest struct {
	ChoiceID       uint  `json:"choice_id" binding:"required"`
	GameID         uint  `json:"game_id" binding:"required"`
	LeftItemID     *uint `json:"left_item_id"`
	RightItemID    *uint `json:"right_item_id"`
	SelectedItemID *uint `json:"selected_item_id"`
	StepIndex      int   `json:"step_index" binding:"gte=0"`
}

type resultRequest struct {
	ChoiceID       uint            `json:"choice_id" binding:"required"`
	GameID         uint            `json:"game_id" binding:"required"`
	WinnerItemID   *uint           `json:"winner_item_id"`
	ResultTitle    string          `json:"result_title" binding:"required,notblank,max=100"`
	ResultCode     string          `json:"result_code" binding:"max=50"`
	ResultImageURL string          `json:"result_image_url" binding:"max=255"`
	ShareURL       string          `json:"share_url" binding:"max=255"`
	ResultPayload  json.RawMessage `json:"result_payload"`
}

type summaryQuery struct {
	GameID   uint  `form:"game_id" binding:"required"`
	ChoiceID *uint `form:"choice_id"`
}

type resultDetailQuery struct {
	ChoiceID uint `form:"choice_id" binding:"required"`
}

type editRequestSubmit struct {
	GameID  uint            `json:"game_id" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type draftSave struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type editRequestMineQuery struct {
	GameID uint `form:"game_id" binding:"required"`
}

var (
	sessionMessages = bindMessages{
		"GameID": {"required": "game_id is required"},
		"Source": {"max": "source must be 50 characters or fewer"},
	}
	pickMessages = bindMessages{
		"ChoiceID":  {"required": "choice_id is required"},
		"GameID":    {"required": "game_id is required"},
		"StepIndex": {"gte": "step_index must be zero or greater"},
	}
	resultMessages = bindMessages{
		"ChoiceID":       {"required": "choice_id is required"},
		"GameID":         {"required": "game_id is required"},
		"ResultTitle":    {"required": "result_title is required", "notblank": "result_title is required", "max": "result_title must be 100 characters or fewer"},
		"ResultCode":     {"max": "result_code must be 50 characters or fewer"},
		"ResultImageURL": {"max": "result_image_url must be 255 characters or fewer"},
		"ShareURL":       {"max": "share_url must be 255 characters or fewer"},
	}
	summaryMessages = bindMessages{
		"GameID": {"required": "game_id is required"},
	}
	resultDetailMessages = bindMessages{
		"ChoiceID": {"required": "choice_id is required"},
	}
	editRequestMessages = bindMessages{
		"GameID":  {"required": "game_id is required"},
		"Payload": {"required": "payload is required"},
	}
)

type gameView struct {
	db.Game
	ThumbnailURL string `json:"thumbnail_url"`
}

type itemView struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	FileName  string `json:"file_name"`
	ImageURL  string `json:"image_url"`
	SortOrder int    `json:"sort_order"`
}

type gameDetailView struct {
	gameView
	Items []itemView `json:"items"`
}

func (s *Server) handleGameList(c *gin.Context) {
	page, perPage := parsePagination(c, defaultPageSize, maxPageSize)
	query := s.db.WithContext(c.Request.Context()).Model(&db.Game{}).
		Where("status = ? AND visibility = ?", db.GameStatusActive, db.VisibilityPublic)
	if gameType := strings.ToUpper(strings.TrimSpace(c.Query("type"))); gameType != "" {
		query = query.Where("type = ?", gameType)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(c, err)
		return
	}
	var games []db.Game
	if err := query.Order("is_official desc").Order("id desc").
		Offset((page - 1) * perPage).Limit(perPage).Find(&games).Error; err != nil {
		writeError(c, err)
		return
	}
	views := make([]gameView, 0, len(games))
	for _, game := range games {
		views = append(views, s.viewGame(game))
	}
	writePage(c, views, buildPagination(page, perPage, total))
}

func (s *Server) handleGameDetail(c *gin.Context) {
	id, ok := bindID(c, "game")
	if !ok {
		return
	}
	var game db.Game
	err := s.db.WithContext(c.Request.Context()).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ? AND is_blocked = ?", true, false).Order("sort_order asc").Order("id asc")
		}).
		First(&game, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(c, apperr.NotFound("game not found"))
			return
		}
		writeError(c, err)
		return
	}
	identity := identityFrom(c)
	privileged := identity.IsStaff || game.OwnedBy(identity.UserID)
	if !privileged && (game.Status != db.GameStatusActive || game.Visibility == db.VisibilityPrivate) {
		writeError(c, apperr.NotFound("game not found"))
		return
	}
	items := make([]itemView, 0, len(game.Items))
	for _, item := range game.Items {
		items = append(items, itemView{
			ID:        item.ID,
			Name:      item.Name,
			FileName:  item.FileName,
			ImageURL:  s.mediaURL(game, item.FileName),
			SortOrder: item.SortOrder,
		})
	}
	writeData(c, http.StatusOK, gameDetailView{gameView: s.viewGame(game), Items: items})
}

func (s *Server) viewGame(game db.Game) gameView {
	return gameView{Game: game, ThumbnailURL: s.mediaURL(game, game.ThumbnailImageURL)}
}

// mediaURL resolves a file reference under the game's storage prefix.
func (s *Server) mediaURL(game db.Game, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}
	key, err := storage.JoinKey(game.StoragePrefix, ref)
	if err != nil {
		return ""
	}
	return s.store.URL(key)
}

func (s *Server) handleSessionCreate(c *gin.Context) {
	var req sessionRequest
	if !bindJSON(c, &req, sessionMessages, "invalid session request") {
		return
	}
	choice, err := s.tournament.StartSession(c.Request.Context(), tournament.StartSessionInput{
		GameID:    req.GameID,
		Actor:     identityFrom(c),
		Source:    normalizeText(req.Source),
		Referer:   c.Request.Referer(),
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusCreated, gin.H{
		"choice_id":     choice.ID,
		"game_id":       choice.GameID,
		"session_token": choice.SessionToken,
		"started_at":    choice.StartedAt,
	})
}

func (s *Server) handlePickCreate(c *gin.Context) {
	var req pickRequest
	if !bindJSON(c, &req, pickMessages, "invalid pick") {
		return
	}
	pick, err := s.tournament.RecordPick(c.Request.Context(), tournament.RecordPickInput{
		ChoiceID:       req.ChoiceID,
		GameID:         req.GameID,
		LeftItemID:     req.LeftItemID,
		RightItemID:    req.RightItemID,
		SelectedItemID: req.SelectedItemID,
		StepIndex:      req.StepIndex,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusCreated, pick)
}

func (s *Server) handlePickSummary(c *gin.Context) {
	var query summaryQuery
	if !bindQuery(c, &query, summaryMessages, "invalid summary query") {
		return
	}
	summary, err := s.tournament.ComputeSummary(c.Request.Context(), query.GameID, query.ChoiceID)
	if err != nil {
		writeError(c, err)
		return
	}
	if summary == nil {
		writeData(c, http.StatusOK, nil)
		return
	}
	writeData(c, http.StatusOK, summary)
}

func (s *Server) handleResultCreate(c *gin.Context) {
	var req resultRequest
	if !bindJSON(c, &req, resultMessages, "invalid result") {
		return
	}
	result, err := s.tournament.RecordResult(c.Request.Context(), tournament.RecordResultInput{
		ChoiceID:       req.ChoiceID,
		GameID:         req.GameID,
		WinnerItemID:   req.WinnerItemID,
		ResultTitle:    req.ResultTitle,
		ResultCode:     req.ResultCode,
		ResultImageURL: req.ResultImageURL,
		ShareURL:       req.ShareURL,
		ResultPayload:  req.ResultPayload,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusCreated, result)
}

func (s *Server) handleResultDetail(c *gin.Context) {
	var query resultDetailQuery
	if !bindQuery(c, &query, resultDetailMessages, "invalid result query") {
		return
	}
	view, err := s.tournament.ResultDetail(c.Request.Context(), query.ChoiceID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, view)
}

func (s *Server) handleEditRequestSubmit(c *gin.Context) {
	var req editRequestSubmit
	if !bindJSON(c, &req, editRequestMessages, "invalid edit request") {
		return
	}
	payload, err := moderation.Decode(req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	submitted, err := s.moderation.Submit(c.Request.Context(), identityFrom(c), req.GameID, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, submitted)
}

func (s *Server) handleEditRequestMine(c *gin.Context) {
	var query editRequestMineQuery
	if !bindQuery(c, &query, bindMessages{"GameID": {"required": "game_id is required"}}, "invalid query") {
		return
	}
	req, err := s.moderation.Mine(c.Request.Context(), identityFrom(c), query.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

func (s *Server) handleDraftDetail(c *gin.Context) {
	draft, err := s.moderation.Draft(c.Request.Context(), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, draft)
}

func (s *Server) handleDraftSave(c *gin.Context) {
	var req draftSave
	if !bindJSON(c, &req, bindMessages{"Payload": {"required": "payload is required"}}, "invalid draft") {
		return
	}
	payload, err := moderation.Decode(req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	draft, err := s.moderation.SaveDraft(c.Request.Context(), identityFrom(c), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, draft)
}

func (s *Server) handleDraftDelete(c *gin.Context) {
	if err := s.moderation.DiscardDraft(c.Request.Context(), identityFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, nil)
}

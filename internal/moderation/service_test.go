package moderation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gamification/internal/apperr"
	"gamification/internal/auth"
	"gamification/internal/db"
	"gamification/internal/db/dbtest"
	"gamification/internal/imagecheck"
	"gamification/internal/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	conn     *gorm.DB
	svc      *Service
	root     string
	owner    db.User
	staff    db.User
	stranger db.User
	game     db.Game
	a, b     db.GameItem
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	fx := dbtest.Fixture{Conn: conn}
	root := t.TempDir()
	owner := fx.User(t, "owner@example.com", false)
	game := fx.Game(t, "snacks", &owner)
	return harness{
		conn:     conn,
		svc:      NewService(conn, nil, storage.NewLocalStore(root, "/media/"), imagecheck.New(1<<20), nil, nil),
		root:     root,
		owner:    owner,
		staff:    fx.User(t, "staff@example.com", true),
		stranger: fx.User(t, "stranger@example.com", false),
		game:     game,
		a:        fx.Item(t, game.ID, "A", 0),
		b:        fx.Item(t, game.ID, "B", 1),
	}
}

func (h harness) ownerID() auth.Identity {
	return auth.Identity{UserID: h.owner.ID}
}

func (h harness) staffID() auth.Identity {
	return auth.Identity{UserID: h.staff.ID, IsStaff: true}
}

func (h harness) history(t *testing.T, requestID uint) []db.GameEditRequestHistory {
	t.Helper()
	var rows []db.GameEditRequestHistory
	require.NoError(t, h.conn.Where("request_id = ?", requestID).Order("id asc").Find(&rows).Error)
	return rows
}

func (h harness) items(t *testing.T) []db.GameItem {
	t.Helper()
	var items []db.GameItem
	require.NoError(t, h.conn.Where("game_id = ?", h.game.ID).Order("sort_order asc, id asc").Find(&items).Error)
	return items
}

func (h harness) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(rel)))
	return err == nil
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return imagecheck.EncodeDataURL(buf.Bytes())
}

func TestSubmitTwiceKeepsSingleRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Title: "First",
		Items: []ItemEdit{{ID: &h.a.ID}, {Name: "C", ImageData: pngDataURL(t)}},
	})
	require.NoError(t, err)
	require.True(t, h.exists(first.RequestPrefix+"item-1.png"))

	second, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "Second"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, db.EditRequestPending, second.Status)
	require.NotEqual(t, first.RequestPrefix, second.RequestPrefix)
	require.False(t, h.exists(first.RequestPrefix), "superseded staging prefix should be removed")

	var count int64
	require.NoError(t, h.conn.Model(&db.GameEditRequest{}).Where("game_id = ?", h.game.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	history := h.history(t, first.ID)
	require.Len(t, history, 2)
	require.Equal(t, db.EditActionSubmitted, history[0].Action)
	require.Equal(t, db.EditActionSubmitted, history[1].Action)

	payload, err := Decode(second.Payload)
	require.NoError(t, err)
	require.Equal(t, "Second", payload.Title)
	require.Nil(t, payload.Items)
}

func TestFirstSubmitLosingInsertRaceDiscardsRivalPrefix(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := storage.NewLocalStore(h.root, "/media/")
	rivalPrefix := "edit-requests/rival/"
	require.NoError(t, store.Save(ctx, rivalPrefix+"item-1.png", bytes.NewReader([]byte("x"))))

	// Another submission commits its row between our lookup and our insert.
	fired := false
	require.NoError(t, h.conn.Callback().Query().After("gorm:query").Register("test:rival_submit", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "game_edit_requests" || !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return
		}
		fired = true
		rival := db.GameEditRequest{
			GameID:        h.game.ID,
			UserID:        h.owner.ID,
			Status:        db.EditRequestPending,
			Payload:       []byte(`{"version":1,"title":"rival"}`),
			RequestPrefix: rivalPrefix,
		}
		other := tx.Session(&gorm.Session{NewDB: true})
		other.Error = nil
		if err := other.Create(&rival).Error; err != nil {
			tx.AddError(err)
		}
	}))

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "mine"})
	require.NoError(t, err)
	require.True(t, fired)
	require.NotEqual(t, rivalPrefix, req.RequestPrefix)
	require.False(t, h.exists(rivalPrefix), "rival staging prefix should be removed")

	var count int64
	require.NoError(t, h.conn.Model(&db.GameEditRequest{}).Where("game_id = ?", h.game.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
	payload, err := Decode(req.Payload)
	require.NoError(t, err)
	require.Equal(t, "mine", payload.Title)
}

func TestResubmitAfterRejectionResetsReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "Draft"})
	require.NoError(t, err)
	_, err = h.svc.Reject(ctx, h.staffID(), req.ID)
	require.NoError(t, err)

	again, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "Draft 2"})
	require.NoError(t, err)
	require.Equal(t, req.ID, again.ID)
	require.Equal(t, db.EditRequestPending, again.Status)
	require.Nil(t, again.ReviewedByID)
	require.Nil(t, again.ReviewedAt)
	require.Len(t, h.history(t, req.ID), 3)
}

func TestSubmitAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := EditPayloadV1{Title: "x"}

	_, err := h.svc.Submit(ctx, auth.Identity{}, h.game.ID, payload)
	require.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = h.svc.Submit(ctx, auth.Identity{UserID: h.stranger.ID}, h.game.ID, payload)
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = h.svc.Submit(ctx, h.ownerID(), h.game.ID+99, payload)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	req, err := h.svc.Submit(ctx, h.staffID(), h.game.ID, payload)
	require.NoError(t, err)
	require.Equal(t, h.staff.ID, req.UserID)
}

func TestSubmitRejectsBadImagesWithoutLeavingFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Items: []ItemEdit{
			{Name: "good", ImageData: pngDataURL(t)},
			{Name: "bad", ImageData: imagecheck.EncodeDataURL([]byte("not an image at all"))},
		},
	})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Fields, "items[1].image_data")

	staged, _ := filepath.Glob(filepath.Join(h.root, "edit-requests", "*", "*", "*"))
	require.Empty(t, staged)

	var count int64
	require.NoError(t, h.conn.Model(&db.GameEditRequest{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmitRejectsStagedReferences(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Submit(context.Background(), h.ownerID(), h.game.ID, EditPayloadV1{
		Items: []ItemEdit{{ID: &h.a.ID}, {Name: "sneaky", ImageURL: "edit-requests/1/other/item-0.png"}},
	})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Fields, "items[1].image_url")
}

func TestApproveReconcilesItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Title:       "Renamed",
		Description: "Fresh description",
		Items: []ItemEdit{
			{ID: &h.a.ID, Name: "A2"},
			{Name: "new", ImageURL: "https://cdn.example.com/new.png"},
		},
	})
	require.NoError(t, err)

	approved, err := h.svc.Approve(ctx, h.staffID(), req.ID)
	require.NoError(t, err)
	require.Equal(t, db.EditRequestApproved, approved.Status)
	require.Equal(t, h.staff.ID, *approved.ReviewedByID)
	require.NotNil(t, approved.ReviewedAt)

	items := h.items(t)
	require.Len(t, items, 2)
	require.Equal(t, h.a.ID, items[0].ID)
	require.Equal(t, "A2", items[0].Name)
	require.Equal(t, "a.png", items[0].FileName)
	require.Equal(t, "new", items[1].Name)
	require.Equal(t, "https://cdn.example.com/new.png", items[1].FileName)
	require.Equal(t, db.ItemSourceUserUpload, items[1].SourceType)
	require.Equal(t, h.owner.ID, *items[1].UploadedByID)
	require.Equal(t, 1, items[1].SortOrder)

	var removed int64
	require.NoError(t, h.conn.Model(&db.GameItem{}).Where("id = ?", h.b.ID).Count(&removed).Error)
	require.Zero(t, removed)

	var game db.Game
	require.NoError(t, h.conn.First(&game, h.game.ID).Error)
	require.Equal(t, "Renamed", game.Title)
	require.Equal(t, "Fresh description", game.Description)

	history := approved.History
	require.Len(t, history, 2)
	require.Equal(t, db.EditActionApproved, history[1].Action)
	require.Equal(t, h.staff.ID, *history[1].UserID)
}

func TestApproveCopiesStagedImagesIntoGame(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Items: []ItemEdit{{ID: &h.a.ID}, {ID: &h.b.ID}, {Name: "C", ImageData: pngDataURL(t)}},
	})
	require.NoError(t, err)
	stagingPrefix := req.RequestPrefix

	approved, err := h.svc.Approve(ctx, h.staffID(), req.ID)
	require.NoError(t, err)
	require.False(t, h.exists(stagingPrefix))

	var stored db.GameEditRequest
	require.NoError(t, h.conn.First(&stored, approved.ID).Error)
	require.Empty(t, stored.RequestPrefix)

	items := h.items(t)
	require.Len(t, items, 3)
	created := items[2]
	require.Equal(t, "C", created.Name)
	require.Regexp(t, `^items/[0-9a-f-]{36}/item-2\.png$`, created.FileName)
	require.True(t, h.exists(h.game.StoragePrefix+created.FileName))
}

func TestApproveRollsBackOnUnresolvableImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Title: "Should not apply",
		Items: []ItemEdit{
			{ID: &h.a.ID, Name: "A2"},
			{Name: "staged", ImageData: pngDataURL(t)},
			{Name: "ghost", ImageURL: "missing.png"},
		},
	})
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, h.staffID(), req.ID)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperr.KindValidation, appErr.Kind)
	require.Contains(t, appErr.Fields, "items[2].image_url")

	items := h.items(t)
	require.Len(t, items, 2)
	require.Equal(t, "A", items[0].Name)
	require.Equal(t, "B", items[1].Name)

	var game db.Game
	require.NoError(t, h.conn.First(&game, h.game.ID).Error)
	require.Equal(t, h.game.Title, game.Title)

	var stored db.GameEditRequest
	require.NoError(t, h.conn.First(&stored, req.ID).Error)
	require.Equal(t, db.EditRequestPending, stored.Status)
	require.True(t, h.exists(stored.RequestPrefix+"item-1.png"), "staged files are kept for a retry")
	require.Len(t, h.history(t, req.ID), 1)

	copied, _ := filepath.Glob(filepath.Join(h.root, filepath.FromSlash(h.game.StoragePrefix), "items", "*"))
	require.Empty(t, copied)
}

func TestApproveKeepsExistingFilesUnderGamePrefix(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := filepath.Join(h.root, filepath.FromSlash(h.game.StoragePrefix))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.png"), []byte("x"), 0o644))

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Items: []ItemEdit{{ID: &h.a.ID, SortOrder: intPtr(5)}, {Name: "new", ImageURL: "x.png"}},
	})
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, h.staffID(), req.ID)
	require.NoError(t, err)

	items := h.items(t)
	require.Len(t, items, 2)
	require.Equal(t, "x.png", items[0].FileName)
	require.Equal(t, h.a.ID, items[1].ID)
	require.Equal(t, 5, items[1].SortOrder)
}

func TestReviewOfTerminalRequestConflicts(t *testing.T) {
	for _, first := range []string{"approve", "reject"} {
		t.Run(first, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "t"})
			require.NoError(t, err)
			if first == "approve" {
				_, err = h.svc.Approve(ctx, h.staffID(), req.ID)
			} else {
				_, err = h.svc.Reject(ctx, h.staffID(), req.ID)
			}
			require.NoError(t, err)
			require.Len(t, h.history(t, req.ID), 2)

			_, err = h.svc.Approve(ctx, h.staffID(), req.ID)
			require.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
			_, err = h.svc.Reject(ctx, h.staffID(), req.ID)
			require.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
			require.Len(t, h.history(t, req.ID), 2)
		})
	}
}

func TestRejectLeavesContentUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{
		Title: "Nope",
		Items: []ItemEdit{{ID: &h.a.ID}, {Name: "C", ImageData: pngDataURL(t)}},
	})
	require.NoError(t, err)

	rejected, err := h.svc.Reject(ctx, h.staffID(), req.ID)
	require.NoError(t, err)
	require.Equal(t, db.EditRequestRejected, rejected.Status)
	require.False(t, h.exists(req.RequestPrefix))
	require.Len(t, h.items(t), 2)

	var game db.Game
	require.NoError(t, h.conn.First(&game, h.game.ID).Error)
	require.Equal(t, h.game.Title, game.Title)
}

type changedGames struct {
	ids []uint
}

func (c *changedGames) GameContentChanged(_ context.Context, gameID uint) {
	c.ids = append(c.ids, gameID)
}

func TestApproveNotifiesContentListener(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	changed := &changedGames{}
	h.svc.listener = changed

	rejected, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "no"})
	require.NoError(t, err)
	_, err = h.svc.Reject(ctx, h.staffID(), rejected.ID)
	require.NoError(t, err)
	require.Empty(t, changed.ids)

	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "yes"})
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, h.staffID(), req.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{h.game.ID}, changed.ids)

	_, err = h.svc.Approve(ctx, h.staffID(), req.ID)
	require.Error(t, err)
	require.Len(t, changed.ids, 1)
}

func TestReviewRequiresStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "t"})
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, h.ownerID(), req.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = h.svc.Reject(ctx, auth.Identity{}, req.ID)
	require.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = h.svc.Approve(ctx, h.staffID(), req.ID+100)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListAndMine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mine, err := h.svc.Submit(ctx, h.ownerID(), h.game.ID, EditPayloadV1{Title: "owner"})
	require.NoError(t, err)
	staffReq, err := h.svc.Submit(ctx, h.staffID(), h.game.ID, EditPayloadV1{Title: "staff"})
	require.NoError(t, err)
	_, err = h.svc.Reject(ctx, h.staffID(), staffReq.ID)
	require.NoError(t, err)

	pending, total, err := h.svc.List(ctx, ListFilter{Status: db.EditRequestPending})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, mine.ID, pending[0].ID)
	require.NotNil(t, pending[0].Game)

	all, total, err := h.svc.List(ctx, ListFilter{GameID: h.game.ID, PerPage: 1, Page: 2})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, all, 1)

	found, err := h.svc.Mine(ctx, h.ownerID(), h.game.ID)
	require.NoError(t, err)
	require.Equal(t, mine.ID, found.ID)
	require.Len(t, found.History, 1)

	_, err = h.svc.Mine(ctx, auth.Identity{UserID: h.stranger.ID}, h.game.ID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSweepStagingClearsLeftovers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	prefix := "edit-requests/1/leftover/"
	dir := filepath.Join(h.root, filepath.FromSlash(prefix))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item-0.png"), []byte("x"), 0o644))

	req := db.GameEditRequest{GameID: h.game.ID, UserID: h.owner.ID, Payload: []byte(`{"version":1}`), RequestPrefix: prefix}
	require.NoError(t, h.conn.Create(&req).Error)
	require.NoError(t, h.conn.Model(&req).Update("status", db.EditRequestApproved).Error)

	swept, err := h.svc.SweepStaging(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, swept, "recently updated requests are skipped")

	h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	swept, err = h.svc.SweepStaging(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	require.False(t, h.exists(prefix))

	var stored db.GameEditRequest
	require.NoError(t, h.conn.First(&stored, req.ID).Error)
	require.Empty(t, stored.RequestPrefix)
}

func intPtr(v int) *int {
	return &v
}

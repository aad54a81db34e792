//go:build integration

package moderation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamification/db/migrations"
	"gamification/internal/apperr"
	"gamification/internal/auth"
	"gamification/internal/config"
	"gamification/internal/db"
	"gamification/internal/db/dbtest"
	"gamification/internal/imagecheck"
	"gamification/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gamification"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	source, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate: %v", err)
	}
	_, _ = m.Close()

	cfg := config.Default()
	cfg.DatabaseURL = dsn
	conn, err := db.Open(cfg)
	require.NoError(t, err)
	return conn
}

func TestPostgresConcurrentApproveIsSerialised(t *testing.T) {
	conn := openPostgres(t)
	fx := dbtest.Fixture{Conn: conn}
	owner := fx.User(t, "owner@example.com", false)
	staff := fx.User(t, "staff@example.com", true)
	game := fx.Game(t, "pg-snacks", &owner)
	a := fx.Item(t, game.ID, "A", 0)
	fx.Item(t, game.ID, "B", 1)

	svc := NewService(conn, nil, storage.NewLocalStore(t.TempDir(), "/media/"), imagecheck.New(1<<20), nil, nil)
	ctx := context.Background()

	req, err := svc.Submit(ctx, auth.Identity{UserID: owner.ID}, game.ID, EditPayloadV1{
		Title: "Renamed",
		Items: []ItemEdit{
			{ID: &a.ID, Name: "A2"},
			{Name: "fresh", ImageData: pngDataURL(t)},
		},
	})
	require.NoError(t, err)

	reviewer := auth.Identity{UserID: staff.ID, IsStaff: true}
	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Approve(ctx, reviewer, req.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)

	var history []db.GameEditRequestHistory
	require.NoError(t, conn.Where("request_id = ?", req.ID).Order("id asc").Find(&history).Error)
	require.Len(t, history, 2)
	require.Equal(t, db.EditActionApproved, history[1].Action)

	var items []db.GameItem
	require.NoError(t, conn.Where("game_id = ?", game.ID).Order("sort_order asc, id asc").Find(&items).Error)
	require.Len(t, items, 2)
	require.Equal(t, "A2", items[0].Name)
	require.Equal(t, "fresh", items[1].Name)
}

func TestPostgresResubmitUpsertsInPlace(t *testing.T) {
	conn := openPostgres(t)
	fx := dbtest.Fixture{Conn: conn}
	owner := fx.User(t, "owner@example.com", false)
	game := fx.Game(t, "pg-upsert", &owner)

	svc := NewService(conn, nil, storage.NewLocalStore(t.TempDir(), "/media/"), imagecheck.New(1<<20), nil, nil)
	ctx := context.Background()
	actor := auth.Identity{UserID: owner.ID}

	first, err := svc.Submit(ctx, actor, game.ID, EditPayloadV1{Title: "one"})
	require.NoError(t, err)
	second, err := svc.Submit(ctx, actor, game.ID, EditPayloadV1{Title: "two"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&db.GameEditRequest{}).Where("game_id = ?", game.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPostgresConcurrentFirstSubmitsKeepOneStagingPrefix(t *testing.T) {
	conn := openPostgres(t)
	fx := dbtest.Fixture{Conn: conn}
	owner := fx.User(t, "owner@example.com", false)
	game := fx.Game(t, "pg-race", &owner)
	a := fx.Item(t, game.ID, "A", 0)
	fx.Item(t, game.ID, "B", 1)

	root := t.TempDir()
	svc := NewService(conn, nil, storage.NewLocalStore(root, "/media/"), imagecheck.New(1<<20), nil, nil)
	ctx := context.Background()
	actor := auth.Identity{UserID: owner.ID}

	image := pngDataURL(t)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(ctx, actor, game.ID, EditPayloadV1{
				Title: fmt.Sprintf("take %d", i),
				Items: []ItemEdit{{ID: &a.ID}, {Name: "new", ImageData: image}},
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var req db.GameEditRequest
	require.NoError(t, conn.Where("game_id = ? AND user_id = ?", game.ID, owner.ID).First(&req).Error)

	var history int64
	require.NoError(t, conn.Model(&db.GameEditRequestHistory{}).Where("request_id = ?", req.ID).Count(&history).Error)
	require.EqualValues(t, workers, history)

	entries, err := os.ReadDir(filepath.Join(root, "edit-requests", fmt.Sprint(game.ID)))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, fmt.Sprintf("edit-requests/%d/%s/", game.ID, entries[0].Name()), req.RequestPrefix)
}

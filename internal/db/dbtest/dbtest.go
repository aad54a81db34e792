// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gamification/internal/db"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// Fixture seeds rows used across service tests.
type Fixture struct {
	Conn *gorm.DB
}

func (f Fixture) User(t testing.TB, email string, staff bool) db.User {
	t.Helper()
	user := db.User{Email: email, Name: strings.Split(email, "@")[0], IsStaff: staff}
	if err := f.Conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (f Fixture) Game(t testing.TB, slug string, owner *db.User) db.Game {
	t.Helper()
	game := db.Game{
		Title:         "Game " + slug,
		Slug:          slug,
		Type:          db.GameTypeWorldCup,
		Status:        db.GameStatusActive,
		Visibility:    db.VisibilityPublic,
		StoragePrefix: "worldcup/" + slug + "/",
	}
	if owner != nil {
		id := owner.ID
		game.CreatedByID = &id
	}
	if err := f.Conn.Create(&game).Error; err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func (f Fixture) Item(t testing.TB, gameID uint, name string, sortOrder int) db.GameItem {
	t.Helper()
	item := db.GameItem{
		GameID:     gameID,
		Name:       name,
		FileName:   strings.ToLower(name) + ".png",
		SortOrder:  sortOrder,
		SourceType: db.ItemSourceOfficial,
		IsActive:   true,
		IsApproved: true,
	}
	if err := f.Conn.Create(&item).Error; err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

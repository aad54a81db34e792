package db

import "time"

type Game struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Title             string         `gorm:"size:100;not null" json:"title"`
	Description       string         `gorm:"type:text;not null;default:''" json:"description"`
	Slug              string         `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Type              GameType       `gorm:"size:20;not null;default:'WORLD_CUP'" json:"type"`
	Status            GameStatus     `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	Visibility        GameVisibility `gorm:"size:20;not null;default:'PUBLIC'" json:"visibility"`
	CreatedByID       *uint          `gorm:"index" json:"created_by_id"`
	CreatedBy         *User          `gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL" json:"-"`
	IsOfficial        bool           `gorm:"not null;default:false" json:"is_official"`
	ThumbnailImageURL string         `gorm:"size:255;not null;default:''" json:"thumbnail_image_url"`
	StoragePrefix     string         `gorm:"size:255;not null" json:"storage_prefix"`
	StartAt           *time.Time     `json:"start_at"`
	EndAt             *time.Time     `json:"end_at"`
	Timestamps
	Items []GameItem `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// OwnedBy reports whether userID created the game.
func (g *Game) OwnedBy(userID uint) bool {
	return g != nil && g.CreatedByID != nil && *g.CreatedByID == userID
}

package db

import (
	"time"

	"gorm.io/datatypes"
)

// GameResult is the terminal outcome of a play-through. ResultPayload is stored
// as submitted; computed ranking data is added at read time only.
type GameResult struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ChoiceID       uint           `gorm:"uniqueIndex;not null" json:"choice_id"`
	Choice         *GameChoiceLog `gorm:"foreignKey:ChoiceID;constraint:OnDelete:CASCADE" json:"-"`
	GameID         uint           `gorm:"index;not null" json:"game_id"`
	Game           *Game          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	WinnerItemID   *uint          `json:"winner_item_id"`
	WinnerItem     *GameItem      `gorm:"foreignKey:WinnerItemID;constraint:OnDelete:SET NULL" json:"-"`
	ResultTitle    string         `gorm:"size:100;not null" json:"result_title"`
	ResultCode     string         `gorm:"size:50;not null;default:''" json:"result_code"`
	ResultImageURL string         `gorm:"size:255;not null;default:''" json:"result_image_url"`
	ShareURL       string         `gorm:"size:255;not null;default:''" json:"share_url"`
	ResultPayload  datatypes.JSON `gorm:"type:jsonb" json:"result_payload"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

package db

import "time"

// WorldcupPickLog is one pairwise decision inside a tournament play-through.
type WorldcupPickLog struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ChoiceID       uint           `gorm:"index;not null" json:"choice_id"`
	Choice         *GameChoiceLog `gorm:"foreignKey:ChoiceID;constraint:OnDelete:CASCADE" json:"-"`
	GameID         uint           `gorm:"index;not null" json:"game_id"`
	Game           *Game          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	LeftItemID     *uint          `json:"left_item_id"`
	LeftItem       *GameItem      `gorm:"foreignKey:LeftItemID;constraint:OnDelete:SET NULL" json:"-"`
	RightItemID    *uint          `json:"right_item_id"`
	RightItem      *GameItem      `gorm:"foreignKey:RightItemID;constraint:OnDelete:SET NULL" json:"-"`
	SelectedItemID *uint          `gorm:"index" json:"selected_item_id"`
	SelectedItem   *GameItem      `gorm:"foreignKey:SelectedItemID;constraint:OnDelete:SET NULL" json:"-"`
	StepIndex      int            `gorm:"not null" json:"step_index"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

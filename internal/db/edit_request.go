package db

import (
	"time"

	"gorm.io/datatypes"
)

// GameEditRequest stages a proposed change to a game's content. There is at
// most one per (game, user); a resubmission overwrites it in place.
type GameEditRequest struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	GameID        uint              `gorm:"not null;uniqueIndex:uniq_game_edit_request" json:"game_id"`
	Game          *Game             `gorm:"constraint:OnDelete:CASCADE" json:"game,omitempty"`
	UserID        uint              `gorm:"not null;uniqueIndex:uniq_game_edit_request" json:"user_id"`
	User          *User             `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Status        EditRequestStatus `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	Payload       datatypes.JSON    `gorm:"type:jsonb;not null" json:"payload"`
	RequestPrefix string            `gorm:"size:255;not null;default:''" json:"-"`
	ReviewedByID  *uint             `json:"reviewed_by_id"`
	ReviewedBy    *User             `gorm:"foreignKey:ReviewedByID;constraint:OnDelete:SET NULL" json:"-"`
	ReviewedAt    *time.Time        `json:"reviewed_at"`
	Timestamps
	History []GameEditRequestHistory `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
}

// GameEditRequestHistory is the append-only audit trail of edit request actions.
type GameEditRequestHistory struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	RequestID uint              `gorm:"index;not null" json:"request_id"`
	GameID    uint              `gorm:"index;not null" json:"game_id"`
	UserID    *uint             `gorm:"index" json:"user_id"`
	Action    EditRequestAction `gorm:"size:20;not null" json:"action"`
	Payload   datatypes.JSON    `gorm:"type:jsonb;not null" json:"payload"`
	Timestamps
}

// WorldcupDraft is a user's unfinished worldcup, autosaved while it is being
// written. Images live under DraftPrefix, which is replaced on every save.
type WorldcupDraft struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex" json:"user_id"`
	User        *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DraftCode   string         `gorm:"size:32;not null;uniqueIndex" json:"draft_code"`
	DraftPrefix string         `gorm:"size:255;not null" json:"-"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Timestamps
}

package db

import "time"

// GameChoiceLog is one play-through of a game.
type GameChoiceLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	GameID       uint       `gorm:"index;not null" json:"game_id"`
	Game         *Game      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID       *uint      `gorm:"index" json:"user_id"`
	User         *User      `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	SessionToken string     `gorm:"size:64;not null" json:"session_token"`
	Source       string     `gorm:"size:50;not null;default:''" json:"source"`
	RefererURL   string     `gorm:"size:255;not null;default:''" json:"referer_url"`
	UserAgent    string     `gorm:"size:255;not null;default:''" json:"user_agent"`
	IPAddress    string     `gorm:"size:45;not null;default:''" json:"ip_address"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Timestamps
}

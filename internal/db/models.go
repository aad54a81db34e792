package db

import "time"

// Timestamps is embedded by value in every mutable entity.
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type GameType string

const (
	GameTypeWorldCup      GameType = "WORLD_CUP"
	GameTypeFortuneTest   GameType = "FORTUNE_TEST"
	GameTypePsychological GameType = "PSYCHOLOGICAL"
	GameTypeQuiz          GameType = "QUIZ"
)

type GameStatus string

const (
	GameStatusDraft    GameStatus = "DRAFT"
	GameStatusActive   GameStatus = "ACTIVE"
	GameStatusStopped  GameStatus = "STOPPED"
	GameStatusArchived GameStatus = "ARCHIVED"
)

type GameVisibility string

const (
	VisibilityPublic   GameVisibility = "PUBLIC"
	VisibilityPrivate  GameVisibility = "PRIVATE"
	VisibilityUnlisted GameVisibility = "UNLISTED"
)

type ItemSource string

const (
	ItemSourceUserUpload ItemSource = "USER_UPLOAD"
	ItemSourceOfficial   ItemSource = "OFFICIAL"
)

type EditRequestStatus string

const (
	EditRequestPending  EditRequestStatus = "PENDING"
	EditRequestApproved EditRequestStatus = "APPROVED"
	EditRequestRejected EditRequestStatus = "REJECTED"
)

type EditRequestAction string

const (
	EditActionSubmitted EditRequestAction = "SUBMITTED"
	EditActionApproved  EditRequestAction = "APPROVED"
	EditActionRejected  EditRequestAction = "REJECTED"
)

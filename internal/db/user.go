package db

// User is the local projection of an identity-provider account. Only the
// fields the games core needs for ownership and review are kept.
type User struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Email   string `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Name    string `gorm:"size:50;not null;default:''" json:"name"`
	IsStaff bool   `gorm:"not null;default:false" json:"is_staff"`
	Timestamps
}

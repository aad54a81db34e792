package db

type GameItem struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	GameID       uint       `gorm:"index;not null" json:"game_id"`
	Name         string     `gorm:"size:100;not null;default:''" json:"name"`
	FileName     string     `gorm:"type:text;not null" json:"file_name"`
	UploadedByID *uint      `gorm:"index" json:"uploaded_by_id"`
	UploadedBy   *User      `gorm:"foreignKey:UploadedByID;constraint:OnDelete:SET NULL" json:"-"`
	SourceType   ItemSource `gorm:"size:20;not null;default:'USER_UPLOAD'" json:"source_type"`
	SortOrder    int        `gorm:"not null;default:0" json:"sort_order"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	IsApproved   bool       `gorm:"not null;default:true" json:"is_approved"`
	IsBlocked    bool       `gorm:"not null;default:false" json:"is_blocked"`
	ReportCount  int        `gorm:"not null;default:0" json:"report_count"`
	Timestamps
}

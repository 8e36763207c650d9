package users

import "time"

// IdentityRecord is a registered cookie and its moderation state.
type IdentityRecord struct {
	Cookie          string               `gorm:"primaryKey;size:255"`
	ShortID         string               `gorm:"size:16;uniqueIndex:idx_identities_short_id;not null"`
	IsAllowed       bool                 `gorm:"not null"`
	RegisteredAt    time.Time            `gorm:"index;not null"`
	ProfileMarkdown string               `gorm:"type:text;not null;default:''"`
	ProfileHTML     string               `gorm:"type:text;not null;default:''"`
	Edits           []IdentityEditRecord `gorm:"foreignKey:Cookie;references:Cookie;constraint:OnDelete:CASCADE"`
}

// TableName defines the table name for the identity model.
func (IdentityRecord) TableName() string {
	return "identities"
}

// IdentityEditRecord references one edit made by an identity. ID preserves
// insertion order.
type IdentityEditRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	Cookie   string    `gorm:"size:255;index:idx_identity_edits_cookie;not null"`
	EditUID  string    `gorm:"size:36;not null"`
	PageName string    `gorm:"size:255;not null"`
	EditedAt time.Time `gorm:"not null"`
}

// TableName defines the table name for the identity edit model.
func (IdentityEditRecord) TableName() string {
	return "identity_edits"
}

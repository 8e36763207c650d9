package wiki

import "time"

// PageRecord is the current projection of a wiki page persisted in the database.
type PageRecord struct {
	Name       string       `gorm:"primaryKey;size:255"`
	Title      string       `gorm:"size:512;not null"`
	Markdown   string       `gorm:"type:text;not null"`
	HTML       string       `gorm:"type:text;not null"`
	Revision   int          `gorm:"not null;default:0"`
	CreatedAt  time.Time    `gorm:"not null"`
	LastEditAt time.Time    `gorm:"index;not null"`
	Edits      []EditRecord `gorm:"foreignKey:PageName;references:Name;constraint:OnDelete:CASCADE"`
}

// TableName defines the table name for the Page model.
func (PageRecord) TableName() string {
	return "pages"
}

// EditRecord is one immutable save of a page. ID is the insertion sequence
// and breaks ties between edits stored with the same timestamp.
type EditRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	UID          string    `gorm:"size:36;uniqueIndex:idx_edits_uid;not null"`
	PageName     string    `gorm:"size:255;index:idx_edits_page_time,priority:1;not null"`
	EditorCookie string    `gorm:"size:255;index:idx_edits_editor;not null"`
	Title        string    `gorm:"size:512;not null"`
	Markdown     string    `gorm:"type:text;not null"`
	EditedAt     time.Time `gorm:"index:idx_edits_page_time,priority:2;index:idx_edits_time;not null"`
}

// TableName defines the table name for the Edit model.
func (EditRecord) TableName() string {
	return "edits"
}

package postgres

import "time"

// ChatMessageRecord is one archived chat turn.
type ChatMessageRecord struct {
	ID uint `gorm:"primaryKey"`

	SessionID string    `gorm:"type:text;not null;index:idx_chat_session_created"`
	Role      string    `gorm:"type:varchar(16);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_session_created"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (ChatMessageRecord) TableName() string {
	return "chat_message"
}

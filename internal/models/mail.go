package models

import "time"

// Attachment is a binary document linked to a record.
type Attachment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ResModel  string    `gorm:"size:64;not null;index:idx_attachment_res" json:"res_model"`
	ResID     uint      `gorm:"not null;index:idx_attachment_res" json:"res_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	MimeType  string    `gorm:"size:100;not null" json:"mimetype"`
	Checksum  string    `gorm:"size:64;not null" json:"checksum"`
	Size      int       `gorm:"not null" json:"size"`
	Data      []byte    `json:"-"`
}

// Message is a chatter entry posted on a record.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ResModel  string    `gorm:"size:64;not null;index:idx_message_res" json:"res_model"`
	ResID     uint      `gorm:"not null;index:idx_message_res" json:"res_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	AuthorID  *uint     `json:"author_id,omitempty"`
}

// Activity is a to-do scheduled on a record for a user.
type Activity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ResModel  string    `gorm:"size:64;not null;index:idx_activity_res" json:"res_model"`
	ResID     uint      `gorm:"not null;index:idx_activity_res" json:"res_id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Summary   string    `gorm:"size:255;not null" json:"summary"`
	Note      string    `gorm:"type:text" json:"note,omitempty"`
	Deadline  time.Time `gorm:"not null" json:"deadline"`
	Done      bool      `gorm:"not null;default:false" json:"done"`
}

// Setting is an admin-managed key/value pair.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Thread is a top-level discussion owned by its creator. Replies and votes belong to it.
type Thread struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Title       string      `gorm:"size:200;not null" json:"title"`
	Description string      `gorm:"type:text;not null" json:"description"`
	Tags        StringList  `gorm:"type:text" json:"tags"`
	Category    string      `gorm:"size:50" json:"category"`
	CreatedByID uint        `gorm:"index;not null" json:"creatorId"`
	CreatedBy   UserSummary `gorm:"foreignKey:CreatedByID;-:migration" json:"createdBy"`
	IsActive    bool        `gorm:"index;not null;default:true" json:"isActive"`
	CreatedAt   time.Time   `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Replies     []Reply     `gorm:"foreignKey:ThreadID" json:"replies"`
	Votes       []Vote      `gorm:"foreignKey:ThreadID" json:"votes"`

	VoteCount  int `gorm:"-" json:"voteCount"`
	ReplyCount int `gorm:"-" json:"replyCount"`
}

// Annotate fills the derived counters from the loaded replies and votes.
func (t *Thread) Annotate() {
	t.VoteCount = Tally(t.Votes)
	t.ReplyCount = len(t.Replies)
	if t.Tags == nil {
		t.Tags = StringList{}
	}
	if t.Replies == nil {
		t.Replies = []Reply{}
	}
	if t.Votes == nil {
		t.Votes = []Vote{}
	}
}

// Reply is a comment appended to a thread.
type Reply struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ThreadID    uint        `gorm:"index;not null" json:"threadId"`
	Content     string      `gorm:"size:1000;not null" json:"content"`
	CreatedByID uint        `gorm:"index;not null" json:"creatorId"`
	CreatedBy   UserSummary `gorm:"foreignKey:CreatedByID;-:migration" json:"createdBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// StringList persists a list of strings as a JSON array column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("unsupported type for StringList")
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

package db

type Session struct {
	ID        string `gorm:"column:id;primaryKey"`
	Title     string `gorm:"column:title;not null;default:''"`
	Model     string `gorm:"column:model;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Session) TableName() string { return "sessions" }

type Message struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID  string `gorm:"column:session_id;not null;index"`
	Role       string `gorm:"column:role;not null"`
	Content    string `gorm:"column:content;not null;default:''"`
	ToolCalls  string `gorm:"column:tool_calls;not null;default:''"`
	ToolCallID string `gorm:"column:tool_call_id;not null;default:''"`
	CreatedAt  int64  `gorm:"column:created_at;not null;default:0"`
}

func (Message) TableName() string { return "messages" }

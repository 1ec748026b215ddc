package directory

import "time"

type User struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:120"`
	Firstname string    `gorm:"size:120"`
	Email     string    `gorm:"size:190;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type Conversation struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID"`
}

type ConversationMember struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"type:uuid;index;not null"`
	UserID         string `gorm:"type:uuid;index;not null"`
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

type Message struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	ConversationID string    `gorm:"type:uuid;index;not null"`
	SenderID       string    `gorm:"type:uuid;not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"index;autoCreateTime"`
}

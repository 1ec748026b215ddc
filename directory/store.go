// Package directory is the persistence collaborator owning users,
// conversations and messages. Conversations are pairwise direct-message
// threads; messages are append-only. Membership truth lives here and is
// consulted by the write path, never by the relay's room registry.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipstream-chat-server/domain"
)

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at dsn and migrates the
// schema. Use "file::memory:?cache=shared" for an in-memory store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&User{}, &Conversation{}, &ConversationMember{}, &Message{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	rec := User{ID: u.ID, Name: u.Name, Firstname: u.Firstname, Email: u.Email}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// FindOrCreateConversation returns the conversation shared by the two
// users, creating it with both memberships when none exists.
func (s *Store) FindOrCreateConversation(ctx context.Context, userID, otherID string) (*domain.Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_members a ON a.conversation_id = conversations.id AND a.user_id = ?", userID).
		Joins("JOIN conversation_members b ON b.conversation_id = conversations.id AND b.user_id = ?", otherID).
		First(&conv).Error
	if err == nil {
		return &domain.Conversation{
			ID:        conv.ID,
			MemberIDs: []string{userID, otherID},
			CreatedAt: conv.CreatedAt,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = Conversation{ID: uuid.New().String(), CreatedAt: time.Now()}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		members := []ConversationMember{
			{ConversationID: conv.ID, UserID: userID},
			{ConversationID: conv.ID, UserID: otherID},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, err
	}

	return &domain.Conversation{
		ID:        conv.ID,
		MemberIDs: []string{userID, otherID},
		CreatedAt: conv.CreatedAt,
	}, nil
}

// ListConversations returns every conversation the user belongs to, newest
// first, each with the other member's user record and the last message.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]domain.ConversationPreview, error) {
	var convs []Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_members m ON m.conversation_id = conversations.id AND m.user_id = ?", userID).
		Order("conversations.created_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}

	previews := make([]domain.ConversationPreview, 0, len(convs))
	for _, conv := range convs {
		preview := domain.ConversationPreview{ConversationID: conv.ID}

		var other ConversationMember
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND user_id <> ?", conv.ID, userID).
			First(&other).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			var u User
			if err := s.db.WithContext(ctx).First(&u, "id = ?", other.UserID).Error; err == nil {
				preview.User = userToDomain(u)
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}

		var last Message
		err = s.db.WithContext(ctx).
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").
			First(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			m := messageToDomain(last)
			preview.LastMessage = &m
		}

		previews = append(previews, preview)
	}
	return previews, nil
}

// ListMessages returns the conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var records []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(records))
	for _, rec := range records {
		out = append(out, messageToDomain(rec))
	}
	return out, nil
}

func (s *Store) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AppendMessage persists one message. The caller is responsible for the
// sender membership check; records are never updated or deleted.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	rec := Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	m := messageToDomain(rec)
	return &m, nil
}

// GetConversation checks that the conversation exists and that userID is a
// member, then returns the other member's identity.
func (s *Store) GetConversation(ctx context.Context, conversationID, userID string) (*domain.ConversationPreview, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	member, err := s.IsMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, domain.ErrNotMember
	}

	preview := domain.ConversationPreview{ConversationID: conv.ID}
	var other ConversationMember
	err = s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
		First(&other).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		var u User
		if err := s.db.WithContext(ctx).First(&u, "id = ?", other.UserID).Error; err == nil {
			preview.User = userToDomain(u)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return &preview, nil
}

func userToDomain(u User) *domain.User {
	return &domain.User{
		ID:        u.ID,
		Name:      u.Name,
		Firstname: u.Firstname,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func messageToDomain(m Message) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

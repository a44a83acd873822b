package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store bundles the repositories over one connection or transaction.
type Store struct {
	db            *gorm.DB
	Conversations ConversationRepository
	Messages      MessageRepository
	Templates     TemplateRepository
	Notifications NotificationRepository
	Schedules     ScheduleRepository
	Contacts      ContactRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Conversations: NewConversationRepository(db),
		Messages:      NewMessageRepository(db),
		Templates:     NewTemplateRepository(db),
		Notifications: NewNotificationRepository(db),
		Schedules:     NewScheduleRepository(db),
		Contacts:      NewContactRepository(db),
	}
}

// Transaction runs fn against a Store bound to a single transaction.
// Returning an error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

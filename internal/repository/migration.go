package repository

import (
	"fmt"

	"casebridge/internal/domain/conversation"
	"casebridge/internal/domain/message"
	"casebridge/internal/domain/notification"
	"casebridge/internal/domain/user"

	"gorm.io/gorm"
)

// Models lists every table owned by this service, parents first.
func Models() []interface{} {
	return []interface{}{
		&conversation.Conversation{},
		&conversation.Participant{},
		&message.Message{},
		&message.Attachment{},
		&message.Receipt{},
		&message.Template{},
		&notification.Notification{},
		&notification.Preference{},
		&notification.Scheduled{},
		&user.Contact{},
	}
}

// InitSchema runs the gorm auto-migration for all models.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// DropSchema removes every table owned by this service, children first.
func DropSchema(db *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}

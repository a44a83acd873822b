package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Contact represents user_contacts, the addresses used for email and SMS delivery.
// Rows are owned by the case-management system.
type Contact struct {
	UserID      uuid.UUID      `gorm:"type:uuid;primaryKey"`
	DisplayName string         `gorm:"size:255;not null"`
	Email       sql.NullString `gorm:"size:255"`
	Phone       sql.NullString `gorm:"size:32"`
	UpdatedAt   time.Time
}

func (Contact) TableName() string {
	return "user_contacts"
}

package conversation

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeDirect Type = "DIRECT"
	TypeGroup  Type = "GROUP"
	TypeCase   Type = "CASE"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDirect, TypeGroup, TypeCase:
		return true
	}
	return false
}

// Conversation represents the conversations table
type Conversation struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Title          sql.NullString `gorm:"size:255"`
	Type           Type           `gorm:"size:16;not null;index"`
	CaseID         sql.NullString `gorm:"size:64;index"`
	DirectKey      sql.NullString `gorm:"size:80;uniqueIndex"`
	CreatedBy      uuid.UUID      `gorm:"type:uuid;not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time
	LastMessageAt  sql.NullTime
	LastActivityAt time.Time `gorm:"not null;index"`
	Metadata       datatypes.JSON

	// Relationships
	Participants []Participant `gorm:"foreignKey:ConversationID"`
}

// Participant represents the conversation_participants table.
// At most one row per (conversation, user) has a null LeftAt.
type Participant struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_participants_active,unique,where:left_at IS NULL"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index:idx_participants_active,unique,where:left_at IS NULL;index"`
	JoinedAt       time.Time `gorm:"not null"`
	LeftAt         sql.NullTime
	IsAdmin        bool `gorm:"not null;default:false"`
	LastReadAt     sql.NullTime
	AddedBy        uuid.NullUUID `gorm:"type:uuid"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "conversation_participants"
}

func (p Participant) Active() bool {
	return !p.LeftAt.Valid
}

// ActiveParticipants returns the participants that have not left.
func (c Conversation) ActiveParticipants() []Participant {
	out := make([]Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// DirectKey builds the unordered pair key stored on DIRECT conversations.
func DirectKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// InDirectPair reports whether userID is one of the two users a DIRECT conversation was created for.
func (c Conversation) InDirectPair(userID uuid.UUID) bool {
	if c.Type != TypeDirect || !c.DirectKey.Valid {
		return false
	}
	a, b, ok := strings.Cut(c.DirectKey.String, ":")
	if !ok {
		return false
	}
	id := userID.String()
	return a == id || b == id
}

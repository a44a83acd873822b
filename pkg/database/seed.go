package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"casebridge/internal/domain/message"
	"casebridge/internal/domain/user"
	"casebridge/internal/template"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixed development identities so tokens minted for them survive a reseed.
var (
	DevAttorneyID  = uuid.MustParse("00000000-0000-4000-8000-000000000001")
	DevParalegalID = uuid.MustParse("00000000-0000-4000-8000-000000000002")
	DevClientID    = uuid.MustParse("00000000-0000-4000-8000-000000000003")
)

type SeedResult struct {
	Contacts  int
	Templates int
}

// SeedDevelopment inserts contacts and templates. Existing rows are left untouched.
func SeedDevelopment(ctx context.Context, db *gorm.DB) (*SeedResult, error) {
	contacts := []user.Contact{
		{UserID: DevAttorneyID, DisplayName: "Dana Attorney", Email: validString("attorney@casebridge.local")},
		{UserID: DevParalegalID, DisplayName: "Sam Paralegal", Email: validString("paralegal@casebridge.local")},
		{UserID: DevClientID, DisplayName: "Ana Client", Email: validString("client@casebridge.local"), Phone: validString("+15555550100")},
	}
	templates := []message.Template{
		seedTemplate("document_request", "case", "Hi {{clientName}}, please upload {{document}} for case {{caseId}}.", ""),
		seedTemplate("interview_scheduled", "case", "Your interview is scheduled for {{date}} at {{location}}.", ""),
		seedTemplate("email.CASE_APPROVED", "notification", "Dear {{recipientName}},\n\nGreat news: {{message}}\n\n{{link}}", `{"subject":"Approved: {{title}}"}`),
		seedTemplate("sms.APPOINTMENT_REMINDER", "notification", "Reminder: {{title}}. {{message}}", ""),
	}

	res := &SeedResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&contacts)
		if r.Error != nil {
			return fmt.Errorf("seed contacts: %w", r.Error)
		}
		res.Contacts = int(r.RowsAffected)

		r = tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).Create(&templates)
		if r.Error != nil {
			return fmt.Errorf("seed templates: %w", r.Error)
		}
		res.Templates = int(r.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("seeded %d contacts and %d templates", res.Contacts, res.Templates)
	return res, nil
}

func seedTemplate(name, category, content, metadata string) message.Template {
	t := message.Template{
		ID:       uuid.New(),
		Name:     name,
		Category: category,
		Content:  content,
		IsActive: true,
	}
	if vars, err := json.Marshal(template.Variables(content)); err == nil {
		t.Variables = datatypes.JSON(vars)
	}
	if metadata != "" {
		t.Metadata = datatypes.JSON(metadata)
	}
	return t
}

func validString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

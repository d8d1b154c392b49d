package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realty/site/internal/models"
)

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	models.TemplateInquiryReceived: {
		TemplateID: models.TemplateInquiryReceived,
		Locale:     models.DefaultLocale,
		Subject:    "New inquiry: {{.FirstName}} {{.LastName}} about {{.Property}}",
		Body: `{{.FirstName}} {{.LastName}} sent an inquiry about {{.Property}}.

Email:   {{.Email}}
Phone:   {{.Phone}}
Country: {{.Country}}
{{if .Message}}
Message:
{{.Message}}
{{end}}
Open the admin dashboard to reply.`,
	},
	models.TemplateInquiryAck: {
		TemplateID: models.TemplateInquiryAck,
		Locale:     models.DefaultLocale,
		Subject:    "Thank you for your inquiry about {{.Property}}",
		Body: `Hi {{.FirstName}},

Thank you for your interest in {{.Property}}. Our team will get in touch with you shortly.`,
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
}

const emailTemplatesCollection = "email_templates"

// EmailTemplateService handles operations related to email templates.
// A nil database serves the built-in defaults only.
type EmailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(db *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{
		db: db,
	}
}

func defaultTemplate(templateID, locale string) (*models.EmailTemplate, error) {
	if tmpl, ok := defaultEmailTemplates[templateID]; ok {
		return &tmpl, nil
	}
	return nil, fmt.Errorf("template %s (locale: %s): %w", templateID, locale, models.ErrNotFound)
}

// GetTemplate retrieves an email template by ID and locale
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	if s.db == nil {
		return defaultTemplate(templateID, locale)
	}
	filter := bson.M{
		"template_id": templateID,
		"locale":      locale,
	}

	var tmpl models.EmailTemplate
	err := s.db.Collection(emailTemplatesCollection).FindOne(ctx, filter).Decode(&tmpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return defaultTemplate(templateID, locale)
		}
		return nil, fmt.Errorf("error retrieving template: %w", err)
	}

	return &tmpl, nil
}

// SaveTemplate upserts an email template after checking that both parts parse.
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	if s.db == nil {
		return fmt.Errorf("saving templates: %w", models.ErrStoreUnavailable)
	}
	if _, _, err := RenderTemplate(tmpl, nil); err != nil {
		return &models.ValidationError{Fields: []string{"subject", "body"}}
	}
	tmpl.GenIDIfEmpty()
	filter := bson.M{
		"template_id": tmpl.TemplateID,
		"locale":      tmpl.Locale,
	}
	update := bson.M{"$set": bson.M{
		"template_id": tmpl.TemplateID,
		"locale":      tmpl.Locale,
		"subject":     tmpl.Subject,
		"body":        tmpl.Body,
	}, "$setOnInsert": bson.M{"_id": tmpl.ID}}
	opts := options.Update().SetUpsert(true)

	if _, err := s.db.Collection(emailTemplatesCollection).UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}

// DeleteTemplate deletes an email template from the database; the default takes over again.
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID string, locale string) error {
	if s.db == nil {
		return fmt.Errorf("deleting templates: %w", models.ErrStoreUnavailable)
	}
	filter := bson.M{
		"template_id": templateID,
		"locale":      locale,
	}
	if _, err := s.db.Collection(emailTemplatesCollection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("error deleting template: %w", err)
	}
	return nil
}

// RenderTemplate executes the subject and body of tmpl with data.
// A nil data only checks that both parse.
func RenderTemplate(tmpl *models.EmailTemplate, data interface{}) (subject, body string, err error) {
	subjectTmpl, err := template.New("subject").Option("missingkey=zero").Parse(tmpl.Subject)
	if err != nil {
		return "", "", fmt.Errorf("parsing subject of %s: %w", tmpl.TemplateID, err)
	}
	bodyTmpl, err := template.New("body").Option("missingkey=zero").Parse(tmpl.Body)
	if err != nil {
		return "", "", fmt.Errorf("parsing body of %s: %w", tmpl.TemplateID, err)
	}
	if data == nil {
		return "", "", nil
	}
	var sb, bb bytes.Buffer
	if err := subjectTmpl.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("rendering subject of %s: %w", tmpl.TemplateID, err)
	}
	if err := bodyTmpl.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("rendering body of %s: %w", tmpl.TemplateID, err)
	}
	return sb.String(), bb.String(), nil
}

package models

// Email template ids.
const (
	TemplateInquiryReceived = "inquiry_received" // to staff
	TemplateInquiryAck      = "inquiry_ack"      // to the person who inquired
)

// DefaultLocale is used when a task does not name one.
const DefaultLocale = "en-US"

// EmailTemplate is a text/template pair stored in the DB.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"template_id" json:"template_id"`
	Locale     string `bson:"locale" json:"locale"`
	Subject    string `bson:"subject" json:"subject"`
	Body       string `bson:"body" json:"body"`
}

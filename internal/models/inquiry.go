package models

import (
	"sort"
	"strings"
	"time"

	"realty/site/internal/utils"
)

// Inquiry is a contact-form submission about a property or project.
// CreatedAt is assigned by the store on insert and never taken from client input.
type Inquiry struct {
	ID        utils.SixID `bson:"_id,omitempty" json:"id" firestore:"-"`
	FirstName string      `bson:"first_name" json:"firstName" firestore:"firstName"`
	LastName  string      `bson:"last_name" json:"lastName" firestore:"lastName"`
	Email     string      `bson:"email" json:"email" firestore:"email"`
	Phone     string      `bson:"phone" json:"phone" firestore:"phone"`
	Country   string      `bson:"country" json:"country" firestore:"country"`
	Property  string      `bson:"property" json:"property" firestore:"property"`
	Message   string      `bson:"message" json:"message" firestore:"message"`
	CreatedAt *time.Time  `bson:"created_at,omitempty" json:"createdAt,omitempty" firestore:"createdAt"`
	Read      bool        `bson:"read" json:"read" firestore:"read"`
	Archived  bool        `bson:"archived" json:"archived" firestore:"archived"`
}

// InquiryInput is the public submission payload.
type InquiryInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	Property  string `json:"property"`
	Message   string `json:"message"`
}

// Validate reports every required field that is missing or blank.
func (in InquiryInput) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"email", in.Email},
		{"phone", in.Phone},
		{"country", in.Country},
		{"property", in.Property},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// InquiryUpdate is a partial merge; nil fields are left untouched.
type InquiryUpdate struct {
	Read     *bool `json:"read,omitempty"`
	Archived *bool `json:"archived,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u InquiryUpdate) IsEmpty() bool {
	return u.Read == nil && u.Archived == nil
}

// Apply merges the update into inq.
func (u InquiryUpdate) Apply(inq *Inquiry) {
	if u.Read != nil {
		inq.Read = *u.Read
	}
	if u.Archived != nil {
		inq.Archived = *u.Archived
	}
}

// InquiryFilter narrows a listing. A nil Archived returns both partitions.
type InquiryFilter struct {
	Archived *bool
}

// Matches reports whether inq passes the filter.
func (f InquiryFilter) Matches(inq *Inquiry) bool {
	return f.Archived == nil || inq.Archived == *f.Archived
}

// BatchResult is the outcome of one id in a bulk operation.
type BatchResult struct {
	ID  utils.SixID `json:"id"`
	Err error       `json:"-"`
}

// OK reports whether the operation on this id succeeded.
func (r BatchResult) OK() bool {
	return r.Err == nil
}

// SortInquiries orders newest first. Inquiries without a timestamp go last,
// keeping their relative order.
func SortInquiries(list []Inquiry) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].CreatedAt, list[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// BoolPtr is a small helper for building partial updates.
func BoolPtr(v bool) *bool {
	return &v
}

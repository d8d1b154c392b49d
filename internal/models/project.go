package models

import (
	"regexp"
	"strings"
	"time"
)

// Project is a development showcased on the marketing site.
type Project struct {
	Base           `bson:",inline"`
	Name           string    `bson:"name" json:"name"`
	Slug           string    `bson:"slug" json:"slug"`
	Location       string    `bson:"location" json:"location"`
	Description    string    `bson:"description" json:"description"`
	Images         []string  `bson:"images" json:"images"` // S3 keys
	VirtualTourURL string    `bson:"virtual_tour_url,omitempty" json:"virtualTourUrl,omitempty"`
	Featured       bool      `bson:"featured" json:"featured"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

// ProjectInput carries the editable fields of a project. Nil fields are left untouched on update.
type ProjectInput struct {
	Name           *string `json:"name,omitempty"`
	Slug           *string `json:"slug,omitempty"`
	Location       *string `json:"location,omitempty"`
	Description    *string `json:"description,omitempty"`
	VirtualTourURL *string `json:"virtualTourUrl,omitempty"`
	Featured       *bool   `json:"featured,omitempty"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify lowercases name and joins its words with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ValidateForCreate fills a missing slug from the name and reports invalid fields.
func (in *ProjectInput) ValidateForCreate() error {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return &ValidationError{Fields: []string{"name"}}
	}
	if in.Slug == nil || *in.Slug == "" {
		slug := Slugify(*in.Name)
		in.Slug = &slug
	}
	return in.validateSlug()
}

// ValidateForUpdate reports invalid fields of a partial update.
func (in *ProjectInput) ValidateForUpdate() error {
	if in.IsEmpty() {
		return &ValidationError{Fields: []string{"name", "slug", "location", "description", "virtualTourUrl", "featured"}}
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return &ValidationError{Fields: []string{"name"}}
	}
	if in.Slug != nil {
		return in.validateSlug()
	}
	return nil
}

func (in *ProjectInput) validateSlug() error {
	if !slugPattern.MatchString(*in.Slug) {
		return &ValidationError{Fields: []string{"slug"}}
	}
	return nil
}

// IsEmpty reports whether the input sets nothing.
func (in *ProjectInput) IsEmpty() bool {
	return in.Name == nil && in.Slug == nil && in.Location == nil && in.Description == nil &&
		in.VirtualTourURL == nil && in.Featured == nil
}

// Apply copies the set fields onto p.
func (in *ProjectInput) Apply(p *Project) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		p.Slug = *in.Slug
	}
	if in.Location != nil {
		p.Location = *in.Location
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.VirtualTourURL != nil {
		p.VirtualTourURL = *in.VirtualTourURL
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
}

// SetFields returns the BSON $set document for the set fields.
func (in *ProjectInput) SetFields() map[string]interface{} {
	set := map[string]interface{}{}
	if in.Name != nil {
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		set["slug"] = *in.Slug
	}
	if in.Location != nil {
		set["location"] = *in.Location
	}
	if in.Description != nil {
		set["description"] = *in.Description
	}
	if in.VirtualTourURL != nil {
		set["virtual_tour_url"] = *in.VirtualTourURL
	}
	if in.Featured != nil {
		set["featured"] = *in.Featured
	}
	return set
}

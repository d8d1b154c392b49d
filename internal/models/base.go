package models

import (
	"realty/site/internal/utils"
)

// Base carries the SixID primary key shared by stored documents.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty" firestore:"-"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

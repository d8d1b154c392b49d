package models

// ContentEntry is one editable block of page content, e.g. a hero banner headline.
type ContentEntry struct {
	Key    string      `bson:"key" json:"key"`
	Value  interface{} `bson:"value" json:"value"`
	Public bool        `bson:"public" json:"public"`
}

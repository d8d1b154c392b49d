package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realty/site/internal/db"
	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// IInquiryService is the data-access contract for inquiries.
type IInquiryService interface {
	// ListInquiries returns matching inquiries newest first; inquiries without a
	// timestamp are placed last.
	ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error)
	GetInquiry(ctx context.Context, id utils.SixID) (*models.Inquiry, error)
	// CreateInquiry validates input and stores it with a store-assigned createdAt.
	CreateInquiry(ctx context.Context, input models.InquiryInput) (*models.Inquiry, error)
	// UpdateInquiry merges the set fields into the existing document.
	UpdateInquiry(ctx context.Context, id utils.SixID, update models.InquiryUpdate) error
	// DeleteInquiry removes the document permanently. Deleting an absent id returns ErrNotFound.
	DeleteInquiry(ctx context.Context, id utils.SixID) error
	// BatchUpdateInquiries applies independent point updates and reports each outcome.
	// Successful updates are not rolled back when others fail.
	BatchUpdateInquiries(ctx context.Context, ids []utils.SixID, update models.InquiryUpdate) []models.BatchResult
}

// IInquiryStore is a repository that can also stream changes.
type IInquiryStore interface {
	IInquiryService
	IInquiryFeed
}

const inquiriesCollection = "inquiries"

// inquiryService implements IInquiryStore on MongoDB.
type inquiryService struct {
	db  *mongo.Database
	bus ChangeBus
	IInquiryFeed
}

// NewInquiryService creates the MongoDB-backed inquiry store. bus may be nil, in which
// case only polling (pollInterval > 0) refreshes subscribers.
func NewInquiryService(database *mongo.Database, bus ChangeBus, pollInterval time.Duration) IInquiryStore {
	s := &inquiryService{db: database, bus: bus}
	s.IInquiryFeed = NewSnapshotFeed(s.ListInquiries, bus, pollInterval)
	return s
}

func (s *inquiryService) collection() *mongo.Collection {
	return s.db.Collection(inquiriesCollection)
}

func (s *inquiryService) publish(ctx context.Context, op string, id utils.SixID) {
	if s.bus != nil {
		s.bus.Publish(ctx, op, id)
	}
}

func (s *inquiryService) ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
	query := bson.M{}
	if filter.Archived != nil {
		query["archived"] = *filter.Archived
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := s.collection().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query inquiries: %w", db.TranslateError(err))
	}
	defer cursor.Close(ctx)

	inquiries := []models.Inquiry{}
	for cursor.Next(ctx) {
		var inq models.Inquiry
		if err := cursor.Decode(&inq); err != nil {
			// One malformed document must not hide the rest of the list.
			log.Printf("Warning: Skipping undecodable inquiry document: %v", err)
			continue
		}
		inquiries = append(inquiries, inq)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inquiries cursor: %w", db.TranslateError(err))
	}

	models.SortInquiries(inquiries)
	return inquiries, nil
}

func (s *inquiryService) GetInquiry(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&inq)
	if err != nil {
		return nil, fmt.Errorf("error finding inquiry %s: %w", id.String(), db.TranslateError(err))
	}
	return &inq, nil
}

// CreateInquiry inserts through an upsert so MongoDB stamps created_at with its own clock
// ($currentDate). The filter can only match a document lacking created_at, which never
// exists, so an id collision surfaces as a duplicate key error and is retried with a new id.
func (s *inquiryService) CreateInquiry(ctx context.Context, input models.InquiryInput) (*models.Inquiry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var created models.Inquiry
	operation := func() error {
		id := utils.NewSixID()
		filter := bson.M{"_id": id, "created_at": bson.M{"$exists": false}}
		update := bson.M{
			"$setOnInsert": bson.M{
				"first_name": strings.TrimSpace(input.FirstName),
				"last_name":  strings.TrimSpace(input.LastName),
				"email":      strings.TrimSpace(input.Email),
				"phone":      strings.TrimSpace(input.Phone),
				"country":    strings.TrimSpace(input.Country),
				"property":   strings.TrimSpace(input.Property),
				"message":    input.Message,
				"read":       false,
				"archived":   false,
			},
			"$currentDate": bson.M{"created_at": true},
		}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		return s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&created)
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert inquiry: %w", db.TranslateError(err))
	}

	metrics.InquiriesCreated.Inc()
	s.publish(ctx, ChangeCreated, created.ID)
	return &created, nil
}

func (s *inquiryService) UpdateInquiry(ctx context.Context, id utils.SixID, update models.InquiryUpdate) error {
	if update.IsEmpty() {
		return &models.ValidationError{Fields: []string{"read", "archived"}}
	}
	set := bson.M{}
	if update.Read != nil {
		set["read"] = *update.Read
	}
	if update.Archived != nil {
		set["archived"] = *update.Archived
	}

	res, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update inquiry %s: %w", id.String(), db.TranslateError(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
	}
	s.publish(ctx, ChangeUpdated, id)
	return nil
}

func (s *inquiryService) DeleteInquiry(ctx context.Context, id utils.SixID) error {
	res, err := s.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete inquiry %s: %w", id.String(), db.TranslateError(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
	}
	s.publish(ctx, ChangeDeleted, id)
	return nil
}

func (s *inquiryService) BatchUpdateInquiries(ctx context.Context, ids []utils.SixID, update models.InquiryUpdate) []models.BatchResult {
	return batchUpdate(ctx, s, ids, update)
}

// batchUpdate is shared by every driver: one independent update per id, no transaction.
func batchUpdate(ctx context.Context, svc IInquiryService, ids []utils.SixID, update models.InquiryUpdate) []models.BatchResult {
	results := make([]models.BatchResult, 0, len(ids))
	for _, id := range ids {
		err := svc.UpdateInquiry(ctx, id, update)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			log.Printf("Batch update of inquiry %s failed: %v", id.String(), err)
		}
		results = append(results, models.BatchResult{ID: id, Err: err})
	}
	return results
}

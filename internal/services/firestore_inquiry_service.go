package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// firestoreInquiryService implements IInquiryStore on Cloud Firestore. Document IDs are
// SixID strings and field names follow the camelCase JSON names.
type firestoreInquiryService struct {
	client *firestore.Client
}

// ConnectFirestore initializes a Firestore client through the Firebase Admin SDK.
// credentialsFile may be empty to use application default credentials.
func ConnectFirestore(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}
	log.Printf("Connected to Firestore project %s", projectID)
	return client, nil
}

// NewFirestoreInquiryService wraps an existing Firestore client.
func NewFirestoreInquiryService(client *firestore.Client) IInquiryStore {
	return &firestoreInquiryService{client: client}
}

func (s *firestoreInquiryService) collection() *firestore.CollectionRef {
	return s.client.Collection(inquiriesCollection)
}

// translateFirestoreError maps gRPC status codes onto the application error kinds.
func translateFirestoreError(err error) error {
	switch status.Code(err) {
	case codes.OK:
		return err
	case codes.NotFound:
		return models.ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	default:
		return err
	}
}

func (s *firestoreInquiryService) query(filter models.InquiryFilter) firestore.Query {
	q := s.collection().Query
	if filter.Archived != nil {
		q = q.Where("archived", "==", *filter.Archived)
	}
	return q
}

// decodeSnapshots converts documents and orders them newest first. Ordering happens here
// rather than in the query because Firestore drops documents lacking the orderBy field.
func decodeSnapshots(docs []*firestore.DocumentSnapshot) []models.Inquiry {
	out := make([]models.Inquiry, 0, len(docs))
	for _, doc := range docs {
		inq, err := decodeInquiry(doc)
		if err != nil {
			log.Printf("Warning: Skipping Firestore inquiry %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, *inq)
	}
	models.SortInquiries(out)
	return out
}

func decodeInquiry(doc *firestore.DocumentSnapshot) (*models.Inquiry, error) {
	id, err := utils.ParseSixID(doc.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("unrecognised document id: %w", err)
	}
	var inq models.Inquiry
	if err := doc.DataTo(&inq); err != nil {
		return nil, err
	}
	inq.ID = id
	return &inq, nil
}

func (s *firestoreInquiryService) ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
	docs, err := s.query(filter).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query inquiries: %w", translateFirestoreError(err))
	}
	return decodeSnapshots(docs), nil
}

func (s *firestoreInquiryService) GetInquiry(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	doc, err := s.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("error finding inquiry %s: %w", id.String(), translateFirestoreError(err))
	}
	return decodeInquiry(doc)
}

func (s *firestoreInquiryService) CreateInquiry(ctx context.Context, input models.InquiryInput) (*models.Inquiry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"firstName": strings.TrimSpace(input.FirstName),
		"lastName":  strings.TrimSpace(input.LastName),
		"email":     strings.TrimSpace(input.Email),
		"phone":     strings.TrimSpace(input.Phone),
		"country":   strings.TrimSpace(input.Country),
		"property":  strings.TrimSpace(input.Property),
		"message":   input.Message,
		"createdAt": firestore.ServerTimestamp,
		"read":      false,
		"archived":  false,
	}

	var ref *firestore.DocumentRef
	var err error
	for attempt := 0; attempt < 4; attempt++ {
		ref = s.collection().Doc(utils.NewSixID().String())
		if _, err = ref.Create(ctx, fields); status.Code(err) != codes.AlreadyExists {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert inquiry: %w", translateFirestoreError(err))
	}
	metrics.InquiriesCreated.Inc()

	// Read back to pick up the server timestamp.
	doc, err := ref.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("inquiry stored but could not be read back: %w", translateFirestoreError(err))
	}
	return decodeInquiry(doc)
}

func (s *firestoreInquiryService) UpdateInquiry(ctx context.Context, id utils.SixID, update models.InquiryUpdate) error {
	if update.IsEmpty() {
		return &models.ValidationError{Fields: []string{"read", "archived"}}
	}
	var updates []firestore.Update
	if update.Read != nil {
		updates = append(updates, firestore.Update{Path: "read", Value: *update.Read})
	}
	if update.Archived != nil {
		updates = append(updates, firestore.Update{Path: "archived", Value: *update.Archived})
	}
	// Update fails with NotFound when the document does not exist.
	if _, err := s.collection().Doc(id.String()).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update inquiry %s: %w", id.String(), translateFirestoreError(err))
	}
	return nil
}

func (s *firestoreInquiryService) DeleteInquiry(ctx context.Context, id utils.SixID) error {
	if _, err := s.collection().Doc(id.String()).Delete(ctx, firestore.Exists); err != nil {
		return fmt.Errorf("failed to delete inquiry %s: %w", id.String(), translateFirestoreError(err))
	}
	return nil
}

func (s *firestoreInquiryService) BatchUpdateInquiries(ctx context.Context, ids []utils.SixID, update models.InquiryUpdate) []models.BatchResult {
	return batchUpdate(ctx, s, ids, update)
}

// Subscribe uses Firestore query snapshots; every snapshot carries the full result set.
func (s *firestoreInquiryService) Subscribe(ctx context.Context, filter models.InquiryFilter, onSnapshot func([]models.Inquiry)) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	it := s.query(filter).Snapshots(subCtx)

	// The first snapshot is read synchronously so subscription errors reach the caller.
	first, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("failed to open inquiry snapshot listener: %w", translateFirestoreError(err))
	}
	initial, err := first.Documents.GetAll()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("failed to read initial inquiry snapshot: %w", translateFirestoreError(err))
	}

	var closed atomic.Bool
	deliver := func(docs []*firestore.DocumentSnapshot) {
		if closed.Load() || subCtx.Err() != nil {
			return
		}
		onSnapshot(decodeSnapshots(docs))
	}

	metrics.FeedSubscribers.Inc()
	go func() {
		defer metrics.FeedSubscribers.Dec()
		defer it.Stop()
		deliver(initial)
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() == nil && status.Code(err) != codes.Canceled {
					log.Printf("Firestore inquiry listener stopped: %v", err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				log.Printf("Firestore inquiry listener: failed to read snapshot: %v", err)
				continue
			}
			deliver(docs)
		}
	}()

	return func() {
		closed.Store(true)
		cancel()
	}, nil
}

package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// memoryInquiryService keeps inquiries in process memory. It backs STORE_DRIVER=memory
// for local development and the workflow tests; it is not shared between processes.
type memoryInquiryService struct {
	mu        sync.RWMutex
	inquiries map[utils.SixID]models.Inquiry
	order     []utils.SixID // insertion order
	now       func() time.Time
	last      time.Time
	bus       ChangeBus
	IInquiryFeed
}

// NewMemoryInquiryService creates an empty in-memory store with its own change bus.
func NewMemoryInquiryService() IInquiryStore {
	return NewMemoryInquiryServiceWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryInquiryServiceWithClock is NewMemoryInquiryService with an injectable clock.
func NewMemoryInquiryServiceWithClock(now func() time.Time) IInquiryStore {
	s := &memoryInquiryService{
		inquiries: make(map[utils.SixID]models.Inquiry),
		now:       now,
		bus:       NewLocalChangeBus(),
	}
	s.IInquiryFeed = NewSnapshotFeed(s.ListInquiries, s.bus, 0)
	return s
}

func (s *memoryInquiryService) ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Inquiry, 0, len(s.order))
	for _, id := range s.order {
		inq := s.inquiries[id]
		if filter.Matches(&inq) {
			out = append(out, inq)
		}
	}
	// order is oldest first; reverse before the stable sort so equal timestamps
	// still come out newest-inserted first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	models.SortInquiries(out)
	return out, nil
}

func (s *memoryInquiryService) GetInquiry(_ context.Context, id utils.SixID) (*models.Inquiry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inq, ok := s.inquiries[id]
	if !ok {
		return nil, fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
	}
	return &inq, nil
}

func (s *memoryInquiryService) CreateInquiry(ctx context.Context, input models.InquiryInput) (*models.Inquiry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := utils.NewSixID()
	for _, taken := s.inquiries[id]; taken; _, taken = s.inquiries[id] {
		id = utils.NewSixID()
	}
	// The store clock never runs backwards, so insertion order and createdAt agree.
	createdAt := s.now()
	if createdAt.Before(s.last) {
		createdAt = s.last
	}
	s.last = createdAt
	inq := models.Inquiry{
		ID:        id,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Country:   strings.TrimSpace(input.Country),
		Property:  strings.TrimSpace(input.Property),
		Message:   input.Message,
		CreatedAt: &createdAt,
	}
	s.inquiries[id] = inq
	s.order = append(s.order, id)
	s.mu.Unlock()

	metrics.InquiriesCreated.Inc()
	s.bus.Publish(ctx, ChangeCreated, id)
	return &inq, nil
}

func (s *memoryInquiryService) UpdateInquiry(ctx context.Context, id utils.SixID, update models.InquiryUpdate) error {
	if update.IsEmpty() {
		return &models.ValidationError{Fields: []string{"read", "archived"}}
	}
	s.mu.Lock()
	inq, ok := s.inquiries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
	}
	update.Apply(&inq)
	s.inquiries[id] = inq
	s.mu.Unlock()

	s.bus.Publish(ctx, ChangeUpdated, id)
	return nil
}

func (s *memoryInquiryService) DeleteInquiry(ctx context.Context, id utils.SixID) error {
	s.mu.Lock()
	if _, ok := s.inquiries[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
	}
	delete(s.inquiries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.bus.Publish(ctx, ChangeDeleted, id)
	return nil
}

func (s *memoryInquiryService) BatchUpdateInquiries(ctx context.Context, ids []utils.SixID, update models.InquiryUpdate) []models.BatchResult {
	return batchUpdate(ctx, s, ids, update)
}

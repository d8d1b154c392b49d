// Package workflow implements the admin inquiry screen: view state (archive partition,
// search, edit mode, selection, open inquiry) and the archive/restore/delete actions
// that go through the inquiry repository.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/services"
	"realty/site/internal/utils"
)

// Toast is user-facing feedback for a finished action.
type Toast struct {
	Type    models.NotificationType `json:"type"`
	Message string                  `json:"message"`
	Err     error                   `json:"-"`
}

// Options configures a Controller. All fields are optional.
type Options struct {
	// OnChange receives the new view after any state change. Calls are serialised and
	// must not re-enter state-changing Controller methods.
	OnChange func(View)
	// OnToast receives action feedback.
	OnToast func(Toast)
	// Location is used to render createdAt for search. Defaults to UTC.
	Location *time.Location
}

// Controller holds the state of one admin session's inquiry screen. Store calls are
// made without holding the lock; results that arrive after Close are dropped.
type Controller struct {
	store services.IInquiryService
	opts  Options

	// emitMu orders view delivery: a view is built and handed to OnChange under it.
	emitMu sync.Mutex

	mu                sync.Mutex
	closed            bool
	unsubscribe       services.Unsubscribe
	all               []models.Inquiry
	archiveView       bool
	editMode          bool
	searchTerm        string
	searchAcross      bool
	selection         map[utils.SixID]struct{}
	openID            *utils.SixID
	pendingDelete     *utils.SixID
	pendingMassDelete []utils.SixID
}

// NewController creates a controller over store. Call Attach to start receiving data.
func NewController(store services.IInquiryService, opts Options) *Controller {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Controller{
		store:     store,
		opts:      opts,
		selection: make(map[utils.SixID]struct{}),
	}
}

// Attach subscribes the controller to the full inquiry feed. The subscription ends on Close.
func (c *Controller) Attach(ctx context.Context, feed services.IInquiryFeed) error {
	unsubscribe, err := feed.Subscribe(ctx, models.InquiryFilter{}, c.ApplySnapshot)
	if err != nil {
		return fmt.Errorf("failed to attach inquiry feed: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return nil
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return nil
}

// Close ends the feed subscription. Later snapshots and store results are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// ApplySnapshot replaces the cached inquiry set with a feed snapshot (newest first).
// The open inquiry is closed when it no longer belongs to the visible partition, and
// selected ids that no longer exist are dropped.
func (c *Controller) ApplySnapshot(all []models.Inquiry) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.all = append([]models.Inquiry(nil), all...)

	present := make(map[utils.SixID]*models.Inquiry, len(c.all))
	for i := range c.all {
		present[c.all[i].ID] = &c.all[i]
	}
	for id := range c.selection {
		if _, ok := present[id]; !ok {
			delete(c.selection, id)
		}
	}
	if c.openID != nil {
		inq, ok := present[*c.openID]
		if !ok || !c.inVisiblePartitionLocked(inq) {
			c.openID = nil
		}
	}
	if c.pendingDelete != nil {
		if _, ok := present[*c.pendingDelete]; !ok {
			c.pendingDelete = nil
		}
	}
	c.mu.Unlock()
	c.changed()
}

// SetArchiveView switches between the active and archived partitions. Switching
// clears the selection and closes the detail view.
func (c *Controller) SetArchiveView(archived bool) {
	c.mu.Lock()
	if c.archiveView != archived {
		c.archiveView = archived
		c.clearSelectionLocked()
		c.openID = nil
		c.pendingDelete = nil
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	c.searchTerm = term
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) SetSearchAcrossArchiveState(across bool) {
	c.mu.Lock()
	c.searchAcross = across
	c.mu.Unlock()
	c.changed()
}

// ToggleEditMode shows or hides the multi-select controls. Leaving edit mode clears
// the selection.
func (c *Controller) ToggleEditMode() {
	c.mu.Lock()
	c.editMode = !c.editMode
	if !c.editMode {
		c.clearSelectionLocked()
	}
	c.mu.Unlock()
	c.changed()
}

// ToggleSelection adds or removes one id from the selection.
func (c *Controller) ToggleSelection(id utils.SixID) {
	c.mu.Lock()
	c.toggleSelectionLocked(id)
	c.mu.Unlock()
	c.changed()
}

// ToggleSelectAll selects every inquiry in the filtered view unless all of them are
// already selected, in which case the selection is cleared.
func (c *Controller) ToggleSelectAll() {
	c.mu.Lock()
	ids := c.filteredIDsLocked()
	allSelected := len(ids) > 0
	for _, id := range ids {
		if _, ok := c.selection[id]; !ok {
			allSelected = false
			break
		}
	}
	if allSelected {
		c.clearSelectionLocked()
	} else {
		c.selection = make(map[utils.SixID]struct{}, len(ids))
		for _, id := range ids {
			c.selection[id] = struct{}{}
		}
	}
	c.mu.Unlock()
	c.changed()
}

// ViewAndMarkRead opens an inquiry in the detail view and marks it read if it is not
// already. In edit mode it toggles the inquiry's selection instead.
func (c *Controller) ViewAndMarkRead(ctx context.Context, id utils.SixID) error {
	c.mu.Lock()
	if c.editMode {
		c.toggleSelectionLocked(id)
		c.mu.Unlock()
		c.changed()
		return nil
	}
	inq := c.findLocked(id)
	if inq == nil {
		c.mu.Unlock()
		err := fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
		c.toastError("Could not open inquiry", err)
		return err
	}
	openID := id
	c.openID = &openID
	alreadyRead := inq.Read
	c.mu.Unlock()
	c.changed()

	if alreadyRead {
		return nil
	}
	err := c.store.UpdateInquiry(ctx, id, models.InquiryUpdate{Read: models.BoolPtr(true)})
	metrics.InquiryMutations.WithLabelValues("mark_read", metrics.Result(err)).Inc()
	if err != nil {
		c.toastError("Could not mark inquiry as read", err)
		return err
	}
	c.mu.Lock()
	if !c.closed {
		if cached := c.findLocked(id); cached != nil {
			cached.Read = true
		}
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// CloseDetail closes the detail view.
func (c *Controller) CloseDetail() {
	c.mu.Lock()
	c.openID = nil
	c.mu.Unlock()
	c.changed()
}

// Archive moves one inquiry out of the active workflow.
func (c *Controller) Archive(ctx context.Context, id utils.SixID) error {
	return c.setArchived(ctx, "archive", id, true)
}

// Restore returns an archived inquiry to the active workflow.
func (c *Controller) Restore(ctx context.Context, id utils.SixID) error {
	return c.setArchived(ctx, "restore", id, false)
}

func (c *Controller) setArchived(ctx context.Context, op string, id utils.SixID, archived bool) error {
	err := c.store.UpdateInquiry(ctx, id, models.InquiryUpdate{Archived: models.BoolPtr(archived)})
	metrics.InquiryMutations.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		c.toastError(fmt.Sprintf("Could not %s inquiry", op), err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.openID != nil && *c.openID == id {
		c.openID = nil
	}
	delete(c.selection, id)
	if cached := c.findLocked(id); cached != nil {
		cached.Archived = archived
	}
	c.mu.Unlock()

	if archived {
		c.toast(models.NotificationSuccess, "Inquiry archived")
	} else {
		c.toast(models.NotificationSuccess, "Inquiry restored")
	}
	c.changed()
	return nil
}

// RequestDelete is the first phase of a permanent delete. Only archived inquiries can
// be deleted; the store is not contacted.
func (c *Controller) RequestDelete(id utils.SixID) error {
	c.mu.Lock()
	inq := c.findLocked(id)
	var err error
	switch {
	case inq == nil:
		err = fmt.Errorf("inquiry %s: %w", id.String(), models.ErrNotFound)
	case !inq.Archived:
		err = models.PolicyError("only archived inquiries can be deleted")
	default:
		pending := id
		c.pendingDelete = &pending
	}
	c.mu.Unlock()
	if err != nil {
		c.toastError("Cannot delete inquiry", err)
		return err
	}
	c.changed()
	return nil
}

// CancelDelete abandons a pending single or bulk delete.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.pendingDelete = nil
	c.pendingMassDelete = nil
	c.mu.Unlock()
	c.changed()
}

// ConfirmDelete permanently deletes the inquiry named by the preceding RequestDelete.
func (c *Controller) ConfirmDelete(ctx context.Context, id utils.SixID) error {
	c.mu.Lock()
	var err error
	switch {
	case c.pendingDelete == nil || *c.pendingDelete != id:
		err = models.PolicyError("delete was not requested for this inquiry")
	default:
		// The inquiry may have been restored since the request.
		if inq := c.findLocked(id); inq != nil && !inq.Archived {
			err = models.PolicyError("only archived inquiries can be deleted")
		}
	}
	c.pendingDelete = nil
	c.mu.Unlock()
	if err != nil {
		c.toastError("Cannot delete inquiry", err)
		return err
	}

	err = c.store.DeleteInquiry(ctx, id)
	metrics.InquiryMutations.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		c.toastError("Could not delete inquiry", err)
		return err
	}

	c.mu.Lock()
	if !c.closed {
		c.removeLocked(id)
	}
	c.mu.Unlock()
	c.toast(models.NotificationSuccess, "Inquiry deleted")
	c.changed()
	return nil
}

// MassArchive archives every selected inquiry from the active view. Each id is updated
// independently; the selection is cleared whatever the outcome.
func (c *Controller) MassArchive(ctx context.Context) ([]models.BatchResult, error) {
	c.mu.Lock()
	ids := c.selectedIDsLocked()
	var err error
	switch {
	case len(ids) == 0:
		err = models.ErrEmptySelection
	case c.archiveView:
		err = models.PolicyError("archiving is only available from the active view")
	}
	c.mu.Unlock()
	if err != nil {
		c.toastError("Cannot archive selection", err)
		return nil, err
	}

	results := c.store.BatchUpdateInquiries(ctx, ids, models.InquiryUpdate{Archived: models.BoolPtr(true)})
	succeeded := 0
	c.mu.Lock()
	for _, r := range results {
		metrics.InquiryMutations.WithLabelValues("archive", metrics.Result(r.Err)).Inc()
		if !r.OK() {
			continue
		}
		succeeded++
		if c.closed {
			continue
		}
		if c.openID != nil && *c.openID == r.ID {
			c.openID = nil
		}
		if cached := c.findLocked(r.ID); cached != nil {
			cached.Archived = true
		}
	}
	if !c.closed {
		c.clearSelectionLocked()
	}
	c.mu.Unlock()

	c.reportBatch("archived", succeeded, len(ids))
	c.changed()
	return results, nil
}

// RequestMassDelete is the first phase of deleting the selection from the archived view.
func (c *Controller) RequestMassDelete() error {
	c.mu.Lock()
	ids := c.selectedIDsLocked()
	var err error
	switch {
	case len(ids) == 0:
		err = models.ErrEmptySelection
	case !c.archiveView:
		err = models.PolicyError("bulk delete is only available from the archived view")
	default:
		c.pendingMassDelete = ids
	}
	c.mu.Unlock()
	if err != nil {
		c.toastError("Cannot delete selection", err)
		return err
	}
	c.changed()
	return nil
}

// ConfirmMassDelete deletes the ids captured by RequestMassDelete one by one and returns
// how many were deleted. Ids that are not archived are skipped and count as failures.
func (c *Controller) ConfirmMassDelete(ctx context.Context) (int, error) {
	c.mu.Lock()
	ids := c.pendingMassDelete
	c.pendingMassDelete = nil
	var err error
	var eligible []utils.SixID
	switch {
	case len(ids) == 0:
		err = models.PolicyError("bulk delete was not requested")
	case !c.archiveView:
		err = models.PolicyError("bulk delete is only available from the archived view")
	default:
		for _, id := range ids {
			if inq := c.findLocked(id); inq != nil && !inq.Archived {
				log.Printf("Skipping bulk delete of inquiry %s: not archived", id.String())
				continue
			}
			eligible = append(eligible, id)
		}
	}
	c.mu.Unlock()
	if err != nil {
		c.toastError("Cannot delete selection", err)
		return 0, err
	}

	deleted := 0
	var removed []utils.SixID
	for _, id := range eligible {
		derr := c.store.DeleteInquiry(ctx, id)
		metrics.InquiryMutations.WithLabelValues("delete", metrics.Result(derr)).Inc()
		if derr != nil {
			log.Printf("Bulk delete of inquiry %s failed: %v", id.String(), derr)
			continue
		}
		deleted++
		removed = append(removed, id)
	}

	c.mu.Lock()
	if !c.closed {
		for _, id := range removed {
			c.removeLocked(id)
		}
		c.clearSelectionLocked()
	}
	c.mu.Unlock()

	c.reportBatch("deleted", deleted, len(ids))
	c.changed()
	return deleted, nil
}

func (c *Controller) reportBatch(verb string, succeeded, total int) {
	switch {
	case succeeded == total:
		c.toast(models.NotificationSuccess, fmt.Sprintf("%d %s %s", total, pluralInquiry(total), verb))
	case succeeded == 0:
		c.toastError(fmt.Sprintf("No inquiries %s", verb), fmt.Errorf("%d of %d failed", total, total))
	default:
		c.toast(models.NotificationWarning, fmt.Sprintf("%d of %d inquiries %s", succeeded, total, verb))
	}
}

func pluralInquiry(n int) string {
	if n == 1 {
		return "inquiry"
	}
	return "inquiries"
}

func (c *Controller) toast(kind models.NotificationType, message string) {
	c.emitToast(Toast{Type: kind, Message: message})
}

func (c *Controller) toastError(prefix string, err error) {
	c.emitToast(Toast{Type: models.NotificationError, Message: prefix + ": " + describe(err), Err: err})
}

func (c *Controller) emitToast(t Toast) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.opts.OnToast == nil {
		return
	}
	c.opts.OnToast(t)
}

func (c *Controller) changed() {
	if c.opts.OnChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	v := c.viewLocked()
	c.mu.Unlock()
	c.opts.OnChange(v)
}

// describe renders an error kind as a short user-facing reason.
func describe(err error) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, models.ErrNotFound):
		return "the inquiry no longer exists"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "the database could not be reached, please try again"
	case errors.Is(err, models.ErrEmptySelection):
		return "select at least one inquiry"
	case errors.Is(err, models.ErrPolicy):
		return err.Error()
	default:
		return err.Error()
	}
}

func (c *Controller) findLocked(id utils.SixID) *models.Inquiry {
	for i := range c.all {
		if c.all[i].ID == id {
			return &c.all[i]
		}
	}
	return nil
}

func (c *Controller) removeLocked(id utils.SixID) {
	for i := range c.all {
		if c.all[i].ID == id {
			c.all = append(c.all[:i], c.all[i+1:]...)
			break
		}
	}
	delete(c.selection, id)
	if c.openID != nil && *c.openID == id {
		c.openID = nil
	}
}

func (c *Controller) toggleSelectionLocked(id utils.SixID) {
	if _, ok := c.selection[id]; ok {
		delete(c.selection, id)
	} else {
		c.selection[id] = struct{}{}
	}
}

func (c *Controller) clearSelectionLocked() {
	c.selection = make(map[utils.SixID]struct{})
}

// selectedIDsLocked returns the selection in display order, then any ids not in the cache.
func (c *Controller) selectedIDsLocked() []utils.SixID {
	ids := make([]utils.SixID, 0, len(c.selection))
	seen := make(map[utils.SixID]bool, len(c.selection))
	for _, inq := range c.all {
		if _, ok := c.selection[inq.ID]; ok {
			ids = append(ids, inq.ID)
			seen[inq.ID] = true
		}
	}
	for id := range c.selection {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

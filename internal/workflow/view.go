package workflow

import (
	"strings"
	"time"

	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// Display formats of createdAt that the search box matches against.
const (
	searchDateTimeLayout = "Jan 2, 2006 3:04 PM"
	searchDateLayout     = "2006-01-02"
)

// View is the rendered state of the inquiry screen.
type View struct {
	ArchiveView              bool   `json:"archiveView"`
	EditMode                 bool   `json:"editMode"`
	SearchTerm               string `json:"searchTerm"`
	SearchAcrossArchiveState bool   `json:"searchAcrossArchiveState"`
	// Grouped is set when the search spans both partitions; Active and Archived then
	// hold the two groups and Inquiries holds both, active first.
	Grouped           bool             `json:"grouped"`
	Inquiries         []models.Inquiry `json:"inquiries"`
	Active            []models.Inquiry `json:"active,omitempty"`
	Archived          []models.Inquiry `json:"archived,omitempty"`
	Selected          []utils.SixID    `json:"selected"`
	SelectedCount     int              `json:"selectedCount"`
	UnreadCount       int              `json:"unreadCount"`
	Open              *models.Inquiry  `json:"open,omitempty"`
	PendingDelete     *utils.SixID     `json:"pendingDelete,omitempty"`
	PendingMassDelete int              `json:"pendingMassDelete,omitempty"`
}

// Filtered returns the current view.
func (c *Controller) Filtered() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		ArchiveView:              c.archiveView,
		EditMode:                 c.editMode,
		SearchTerm:               c.searchTerm,
		SearchAcrossArchiveState: c.searchAcross,
		Selected:                 c.selectedIDsLocked(),
		SelectedCount:            len(c.selection),
		PendingMassDelete:        len(c.pendingMassDelete),
	}
	v.Grouped, v.Active, v.Archived, v.Inquiries = c.filterLocked()
	for _, inq := range c.all {
		if !inq.Read && !inq.Archived {
			v.UnreadCount++
		}
	}
	if c.openID != nil {
		if inq := c.findLocked(*c.openID); inq != nil {
			open := *inq
			v.Open = &open
		}
	}
	if c.pendingDelete != nil {
		id := *c.pendingDelete
		v.PendingDelete = &id
	}
	return v
}

// filterLocked applies the archive partition and search term to the cached inquiries,
// keeping the newest-first order.
func (c *Controller) filterLocked() (grouped bool, active, archived, list []models.Inquiry) {
	term := strings.ToLower(strings.TrimSpace(c.searchTerm))
	grouped = c.searchAcross && term != ""

	list = []models.Inquiry{}
	for _, inq := range c.all {
		if !grouped && inq.Archived != c.archiveView {
			continue
		}
		if term != "" && !matchesSearch(&inq, term, c.opts.Location) {
			continue
		}
		if grouped {
			if inq.Archived {
				archived = append(archived, inq)
			} else {
				active = append(active, inq)
			}
			continue
		}
		list = append(list, inq)
	}
	if grouped {
		list = append(append(list, active...), archived...)
		if active == nil {
			active = []models.Inquiry{}
		}
		if archived == nil {
			archived = []models.Inquiry{}
		}
	}
	return grouped, active, archived, list
}

func (c *Controller) filteredIDsLocked() []utils.SixID {
	_, _, _, list := c.filterLocked()
	ids := make([]utils.SixID, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	return ids
}

// inVisiblePartitionLocked reports whether inq can be shown under the current archive
// view. A cross-partition search shows both partitions.
func (c *Controller) inVisiblePartitionLocked(inq *models.Inquiry) bool {
	if c.searchAcross && strings.TrimSpace(c.searchTerm) != "" {
		return true
	}
	return inq.Archived == c.archiveView
}

// matchesSearch reports whether any searchable field contains term, which must
// already be lower-cased.
func matchesSearch(inq *models.Inquiry, term string, loc *time.Location) bool {
	fields := []string{
		inq.FirstName,
		inq.LastName,
		inq.Email,
		inq.Phone,
		inq.Country,
		inq.Property,
		inq.Message,
	}
	if inq.CreatedAt != nil {
		t := inq.CreatedAt.In(loc)
		fields = append(fields, t.Format(searchDateTimeLayout), t.Format(searchDateLayout))
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

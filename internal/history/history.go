// Package history keeps the ordered, branch-truncating log of transformations
// applied in one editing session, plus the undo/redo cursor.
package history

import (
	"time"

	"github.com/google/uuid"

	"go-image-editor/pkg/models"
)

// OriginCursor is the cursor position of the untouched base image.
const OriginCursor = -1

// History is not safe for concurrent use; the owning session serialises access.
type History struct {
	entries []models.Transformation
	cursor  int
	now     func() time.Time
	newID   func() string
}

// New creates an empty history positioned at the original image.
func New() *History {
	return &History{
		cursor: OriginCursor,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Append discards every entry after the cursor, appends t with a fresh id and
// timestamp, and moves the cursor onto it. The stored copy is returned.
func (h *History) Append(t models.Transformation) models.Transformation {
	h.entries = h.entries[:h.cursor+1]

	t.ID = h.newID()
	t.CreatedAt = h.now()
	if t.State == "" {
		t.State = models.StatePending
	}
	if t.Params != nil {
		p := *t.Params
		t.Params = &p
	}

	h.entries = append(h.entries, t)
	h.cursor = len(h.entries) - 1
	return t
}

// Update merges patch into the entry with the given id. Unknown ids are ignored
// because truncation can race with late completions.
func (h *History) Update(id string, patch models.Patch) bool {
	idx := h.IndexOf(id)
	if idx < 0 {
		return false
	}
	e := &h.entries[idx]
	if patch.State != nil {
		e.State = *patch.State
	}
	if patch.ResultURL != nil {
		e.ResultURL = *patch.ResultURL
	}
	if patch.Reason != nil {
		e.Reason = *patch.Reason
	}
	if patch.Label != nil {
		e.Label = *patch.Label
	}
	return true
}

// Undo moves the cursor back one entry. It reports false at the origin.
func (h *History) Undo() bool {
	if h.cursor < 0 {
		return false
	}
	h.cursor--
	return true
}

// Redo moves the cursor forward one entry. It reports false at the newest entry.
func (h *History) Redo() bool {
	if h.cursor >= len(h.entries)-1 {
		return false
	}
	h.cursor++
	return true
}

// Reset clears all entries.
func (h *History) Reset() {
	h.entries = nil
	h.cursor = OriginCursor
}

// ClearOrphanedProcessing fails every async-class entry still processing other
// than keep. It returns the ids it touched.
func (h *History) ClearOrphanedProcessing(keep string, reason string) []string {
	var cleared []string
	for i := range h.entries {
		e := &h.entries[i]
		if e.ID == keep || e.State != models.StateProcessing || !e.Kind.IsAsyncClass() {
			continue
		}
		e.State = models.StateFailed
		e.Reason = reason
		cleared = append(cleared, e.ID)
	}
	return cleared
}

// FailProcessing fails the processing entry with the given id, if it is still
// processing. It reports whether anything changed.
func (h *History) FailProcessing(id string, reason string) bool {
	idx := h.IndexOf(id)
	if idx < 0 || h.entries[idx].State != models.StateProcessing {
		return false
	}
	h.entries[idx].State = models.StateFailed
	h.entries[idx].Reason = reason
	return true
}

// Cursor returns the index of the active entry, or OriginCursor.
func (h *History) Cursor() int {
	return h.cursor
}

// Len returns the number of entries, including those after the cursor.
func (h *History) Len() int {
	return len(h.entries)
}

// CanUndo reports whether Undo would move the cursor.
func (h *History) CanUndo() bool {
	return h.cursor >= 0
}

// CanRedo reports whether Redo would move the cursor.
func (h *History) CanRedo() bool {
	return h.cursor < len(h.entries)-1
}

// IndexOf returns the index of id, or -1.
func (h *History) IndexOf(id string) int {
	for i := range h.entries {
		if h.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the entry with the given id.
func (h *History) Get(id string) (models.Transformation, bool) {
	idx := h.IndexOf(id)
	if idx < 0 {
		return models.Transformation{}, false
	}
	return h.entries[idx], true
}

// At returns a copy of the entry at index i.
func (h *History) At(i int) (models.Transformation, bool) {
	if i < 0 || i >= len(h.entries) {
		return models.Transformation{}, false
	}
	return h.entries[i], true
}

// AnyProcessing reports whether any entry is waiting on the processing service.
func (h *History) AnyProcessing() bool {
	for i := range h.entries {
		if h.entries[i].State == models.StateProcessing {
			return true
		}
	}
	return false
}

// Entries returns a copy of every entry.
func (h *History) Entries() []models.Transformation {
	out := make([]models.Transformation, len(h.entries))
	copy(out, h.entries)
	return out
}

// CompletedUpToCursor returns the completed entries that are currently applied.
func (h *History) CompletedUpToCursor() []models.Transformation {
	var out []models.Transformation
	for i := 0; i <= h.cursor && i < len(h.entries); i++ {
		if h.entries[i].Completed() {
			out = append(out, h.entries[i])
		}
	}
	return out
}

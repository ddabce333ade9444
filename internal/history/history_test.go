package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-editor/pkg/models"
)

func newTestHistory() *History {
	h := New()
	n := 0
	h.newID = func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func rotate(deg int) models.Transformation {
	return models.Transformation{
		Kind:   models.KindRotate,
		Label:  fmt.Sprintf("Rotate %d", deg),
		State:  models.StateCompleted,
		Params: &models.Params{Degrees: deg},
	}
}

func TestAppend_AssignsIDAndMovesCursor(t *testing.T) {
	h := newTestHistory()
	assert.Equal(t, OriginCursor, h.Cursor())

	first := h.Append(rotate(90))
	second := h.Append(rotate(180))

	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, "t2", second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, 1, h.Cursor())
	assert.Equal(t, 2, h.Len())
}

func TestAppend_DefaultsToPending(t *testing.T) {
	h := newTestHistory()
	e := h.Append(models.Transformation{Kind: models.KindEnhancement})
	assert.Equal(t, models.StatePending, e.State)
}

func TestAppend_CopiesParams(t *testing.T) {
	h := newTestHistory()
	p := &models.Params{Degrees: 90}
	e := h.Append(models.Transformation{Kind: models.KindRotate, Params: p})
	p.Degrees = 270

	stored, ok := h.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, 90, stored.Params.Degrees)
}

func TestAppendAfterUndo_TruncatesBranch(t *testing.T) {
	h := newTestHistory()
	h.Append(rotate(90))
	h.Append(rotate(180))
	h.Append(rotate(270))

	require.True(t, h.Undo())
	require.True(t, h.Undo())
	assert.Equal(t, 0, h.Cursor())

	h.Append(rotate(0))
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 1, h.Cursor())
	assert.False(t, h.Redo(), "redo after a branching append must be a no-op")

	_, ok := h.Get("t2")
	assert.False(t, ok, "undone entries must be discarded")
}

func TestUndoRedo_Bounds(t *testing.T) {
	h := newTestHistory()
	assert.False(t, h.Undo())
	assert.False(t, h.Redo())

	h.Append(rotate(90))
	assert.False(t, h.Redo())
	assert.True(t, h.Undo())
	assert.Equal(t, OriginCursor, h.Cursor())
	assert.False(t, h.Undo())
	assert.True(t, h.Redo())
	assert.Equal(t, 0, h.Cursor())
}

func TestUpdate_UnknownIDIsNoop(t *testing.T) {
	h := newTestHistory()
	h.Append(rotate(90))
	assert.False(t, h.Update("missing", models.FailedPatch("gone")))

	e, _ := h.At(0)
	assert.Equal(t, models.StateCompleted, e.State)
}

func TestUpdate_MergesPatch(t *testing.T) {
	h := newTestHistory()
	e := h.Append(models.Transformation{Kind: models.KindBackgroundRemoval, State: models.StateProcessing})

	require.True(t, h.Update(e.ID, models.CompletedPatch("https://cdn.example/a.png?tr=e-bgremove")))
	got, _ := h.Get(e.ID)
	assert.Equal(t, models.StateCompleted, got.State)
	assert.Equal(t, "https://cdn.example/a.png?tr=e-bgremove", got.ResultURL)
	assert.Equal(t, models.KindBackgroundRemoval, got.Kind)
}

func TestReset(t *testing.T) {
	h := newTestHistory()
	h.Append(rotate(90))
	h.Reset()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, OriginCursor, h.Cursor())
	assert.False(t, h.CanUndo())
}

func TestClearOrphanedProcessing(t *testing.T) {
	h := newTestHistory()
	stuck := h.Append(models.Transformation{Kind: models.KindEnhancement, State: models.StateProcessing})
	active := h.Append(models.Transformation{Kind: models.KindBackgroundRemoval, State: models.StateProcessing})
	local := h.Append(models.Transformation{Kind: models.KindRotate, State: models.StateProcessing, Params: &models.Params{Degrees: 90}})

	cleared := h.ClearOrphanedProcessing(active.ID, "superseded")
	assert.Equal(t, []string{stuck.ID}, cleared)

	got, _ := h.Get(stuck.ID)
	assert.Equal(t, models.StateFailed, got.State)
	got, _ = h.Get(active.ID)
	assert.Equal(t, models.StateProcessing, got.State)
	got, _ = h.Get(local.ID)
	assert.Equal(t, models.StateProcessing, got.State, "client-side kinds are not async class")
}

func TestAnyProcessingAndCompletedUpToCursor(t *testing.T) {
	h := newTestHistory()
	h.Append(rotate(90))
	p := h.Append(models.Transformation{Kind: models.KindEnhancement, State: models.StateProcessing})
	assert.True(t, h.AnyProcessing())

	h.Update(p.ID, models.FailedPatch("boom"))
	assert.False(t, h.AnyProcessing())

	h.Append(rotate(180))
	h.Undo()
	completed := h.CompletedUpToCursor()
	require.Len(t, completed, 1)
	assert.Equal(t, 90, completed[0].Params.Degrees)
}

func TestFailProcessing(t *testing.T) {
	h := newTestHistory()
	done := h.Append(rotate(90))
	pending := h.Append(models.Transformation{Kind: models.KindBackgroundRemoval, State: models.StateProcessing})

	assert.False(t, h.FailProcessing(done.ID, "cancelled"))
	assert.False(t, h.FailProcessing("missing", "cancelled"))
	require.True(t, h.FailProcessing(pending.ID, "cancelled"))
	assert.False(t, h.FailProcessing(pending.ID, "cancelled"))

	got, _ := h.Get(pending.ID)
	assert.Equal(t, models.StateFailed, got.State)
	assert.Equal(t, "cancelled", got.Reason)
	assert.False(t, h.AnyProcessing())
}

package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiddflow/internal/artifact"
)

func newApplier(t *testing.T) (*Applier, *Store, *artifact.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "reports", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	store.Now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	docs := artifact.NewStore(filepath.Join(dir, "docs"))
	docs.Now = store.Now
	_, err = docs.Create("ABC-1", artifact.KindTasklist, artifact.Meta{Status: artifact.StatusReady},
		"## Tasks\n\n- [ ] T1: First\n- [ ] T2: Second\n")
	require.NoError(t, err)

	return NewApplier(store, docs), store, docs
}

func setDone(key, itemID string) ActionRecord {
	return ActionRecord{
		Type:           ActionSetItemDone,
		IdempotencyKey: key,
		Params:         map[string]any{"item_id": itemID},
	}
}

func TestApply_AppliesAndLedgers(t *testing.T) {
	applier, store, docs := newApplier(t)
	ctx := context.Background()

	records := []ActionRecord{
		setDone("k1", "T1"),
		{Type: ActionAppendProgress, IdempotencyKey: "k2",
			Params: map[string]any{"entry": "2026-03-14 finished T1"}},
	}
	result, err := applier.Apply(ctx, "ABC-1", "implement", "inv-1", records)
	require.NoError(t, err)
	assert.Len(t, result.Applied, 2)
	assert.Empty(t, result.AlreadyApplied)
	assert.Empty(t, result.Rejected)

	doc, err := docs.Load("ABC-1", artifact.KindTasklist)
	require.NoError(t, err)
	assert.True(t, doc.TaskItems()[0].Done)
	assert.True(t, doc.SectionFilled(artifact.SectionProgressLog))

	entries, err := store.Entries(ctx, "ABC-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "k1", entries[0].IdempotencyKey)
	assert.Equal(t, "inv-1", entries[0].InvocationID)
	assert.Equal(t, "2026-03-14T09:26:53Z", entries[0].AppliedAt)
}

func TestApply_ReplayIsAlreadyApplied(t *testing.T) {
	applier, store, docs := newApplier(t)
	ctx := context.Background()

	records := []ActionRecord{setDone("k1", "T1")}
	_, err := applier.Apply(ctx, "ABC-1", "implement", "inv-1", records)
	require.NoError(t, err)

	doc, _ := docs.Load("ABC-1", artifact.KindTasklist)
	versionAfterFirst := doc.Meta.Version

	// Identical payload under the same key replays with the stored outcome.
	result, err := applier.Apply(ctx, "ABC-1", "implement", "inv-2", records)
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	require.Len(t, result.AlreadyApplied, 1)
	assert.Equal(t, "applied", result.AlreadyApplied[0].Outcome)

	// One ledger entry, no duplicate mutation.
	entries, _ := store.Entries(ctx, "ABC-1")
	assert.Len(t, entries, 1)
	doc, _ = docs.Load("ABC-1", artifact.KindTasklist)
	assert.Equal(t, versionAfterFirst, doc.Meta.Version)
}

func TestApply_ConflictOnPayloadMismatch(t *testing.T) {
	applier, store, docs := newApplier(t)
	ctx := context.Background()

	_, err := applier.Apply(ctx, "ABC-1", "implement", "inv-1", []ActionRecord{setDone("k1", "T1")})
	require.NoError(t, err)

	doc, _ := docs.Load("ABC-1", artifact.KindTasklist)
	versionBefore := doc.Meta.Version

	// Same key, different payload: fatal, no mutation, no new entry.
	_, err = applier.Apply(ctx, "ABC-1", "implement", "inv-2", []ActionRecord{setDone("k1", "T2")})
	require.ErrorIs(t, err, ErrApplyConflict)

	entries, _ := store.Entries(ctx, "ABC-1")
	assert.Len(t, entries, 1)
	doc, _ = docs.Load("ABC-1", artifact.KindTasklist)
	assert.Equal(t, versionBefore, doc.Meta.Version)
	assert.False(t, doc.TaskItems()[1].Done)
}

func TestApply_RejectsInvalidBatchBeforeMutation(t *testing.T) {
	applier, store, docs := newApplier(t)
	ctx := context.Background()

	records := []ActionRecord{
		setDone("k1", "T1"),
		{Type: "bogus.action", IdempotencyKey: "k2"},
	}
	result, err := applier.Apply(ctx, "ABC-1", "implement", "inv-1", records)
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "unknown action type")

	// The valid record was not applied either.
	entries, _ := store.Entries(ctx, "ABC-1")
	assert.Empty(t, entries)
	doc, _ := docs.Load("ABC-1", artifact.KindTasklist)
	assert.False(t, doc.TaskItems()[0].Done)
}

func TestApply_UnknownTaskRejects(t *testing.T) {
	applier, store, _ := newApplier(t)
	ctx := context.Background()

	result, err := applier.Apply(ctx, "ABC-1", "implement", "inv-1", []ActionRecord{setDone("k1", "T99")})
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, result.Rejected, 1)

	entries, _ := store.Entries(ctx, "ABC-1")
	assert.Empty(t, entries)
}

func TestApply_UpdateSectionAndStatus(t *testing.T) {
	applier, _, docs := newApplier(t)
	ctx := context.Background()

	_, err := docs.Create("ABC-1", artifact.KindPlan, artifact.Meta{Status: artifact.StatusDraft},
		"## Approach\n\ninitial\n")
	require.NoError(t, err)

	records := []ActionRecord{
		{Type: ActionUpdateSection, IdempotencyKey: "k1",
			Params: map[string]any{"doc": "plan", "section": "Approach", "content": "revised"}},
		{Type: ActionSetArtifactStatus, IdempotencyKey: "k2",
			Params: map[string]any{"doc": "plan", "status": artifact.StatusReady}},
	}
	result, err := applier.Apply(ctx, "ABC-1", "plan", "inv-1", records)
	require.NoError(t, err)
	assert.Len(t, result.Applied, 2)

	doc, err := docs.Load("ABC-1", artifact.KindPlan)
	require.NoError(t, err)
	content, _ := doc.Section("Approach")
	assert.Equal(t, "revised", content)
	assert.Equal(t, artifact.StatusReady, doc.Meta.Status)

	// The batch touched one document once.
	assert.Equal(t, 2, doc.Meta.Version)
}

func TestApply_NoRecordsIsNoop(t *testing.T) {
	applier, store, _ := newApplier(t)
	ctx := context.Background()

	result, err := applier.Apply(ctx, "ABC-1", "implement", "inv-1", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Applied)

	entries, _ := store.Entries(ctx, "ABC-1")
	assert.Empty(t, entries)
}

func TestApply_InBatchKeyConflict(t *testing.T) {
	applier, _, _ := newApplier(t)

	records := []ActionRecord{setDone("k1", "T1"), setDone("k1", "T2")}
	_, err := applier.Apply(context.Background(), "ABC-1", "implement", "inv-1", records)
	assert.ErrorIs(t, err, ErrApplyConflict)
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiddflow/internal/artifact"
)

// Sentinel errors.
var (
	// ErrApplyConflict indicates an idempotency key was reused with a
	// different payload. This is fatal; the conflicting record is never
	// silently overwritten.
	ErrApplyConflict = errors.New("idempotency key reused with different payload")

	// ErrRejected indicates at least one record failed validation; the
	// whole batch was refused before any artifact was touched.
	ErrRejected = errors.New("action batch rejected")
)

// Rejection pairs a refused record with the reason.
type Rejection struct {
	Record ActionRecord
	Reason string
}

// ApplyResult classifies every record from one invocation.
type ApplyResult struct {
	Applied        []Entry
	AlreadyApplied []Entry
	Rejected       []Rejection
}

// Applier validates action records and applies them to artifacts under the
// ledger's idempotency discipline. It is the only writer of artifact
// mutations in the system.
type Applier struct {
	store *Store
	docs  *artifact.Store
}

// NewApplier creates an [Applier] over the given ledger and artifact store.
func NewApplier(store *Store, docs *artifact.Store) *Applier {
	return &Applier{store: store, docs: docs}
}

// Apply validates and applies one invocation's records as a batch.
//
// Validation runs before any artifact is touched; a schema-invalid record
// rejects the whole batch with [ErrRejected]. A key already recorded with an
// identical payload replays as already-applied with the stored outcome. A
// key recorded with a different payload aborts with [ErrApplyConflict] and
// no mutation. Fresh records mutate their artifacts first and then land in
// the ledger inside a single transaction, so a crash mid-batch never leaves
// a partial set of ledger entries.
func (a *Applier) Apply(ctx context.Context, ticket, scope, invocationID string, records []ActionRecord) (*ApplyResult, error) {
	result := &ApplyResult{}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			result.Rejected = append(result.Rejected, Rejection{Record: rec, Reason: err.Error()})
		}
	}
	seen := make(map[string]string, len(records))
	for _, rec := range records {
		if prior, ok := seen[rec.IdempotencyKey]; ok && prior != rec.PayloadHash() {
			return result, fmt.Errorf("%w: %s (within batch)", ErrApplyConflict, rec.IdempotencyKey)
		}
		seen[rec.IdempotencyKey] = rec.PayloadHash()
	}
	if len(result.Rejected) > 0 {
		return result, fmt.Errorf("%w: %d of %d records invalid", ErrRejected, len(result.Rejected), len(records))
	}

	// Partition replays from fresh work before mutating anything.
	var fresh []ActionRecord
	for _, rec := range records {
		existing, err := a.store.Lookup(ctx, ticket, scope, rec.IdempotencyKey)
		if err != nil {
			return result, err
		}
		if existing == nil {
			fresh = append(fresh, rec)
			continue
		}
		if existing.PayloadHash != rec.PayloadHash() {
			return result, fmt.Errorf("%w: %s", ErrApplyConflict, rec.IdempotencyKey)
		}
		result.AlreadyApplied = append(result.AlreadyApplied, *existing)
	}

	if len(fresh) == 0 {
		return result, nil
	}

	// Mutate documents in memory, then persist each exactly once.
	outcomes := make([]string, len(fresh))
	loaded := make(map[artifact.Kind]*artifact.Document)
	for i, rec := range fresh {
		outcome, err := a.applyRecord(ticket, rec, loaded)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{Record: rec, Reason: err.Error()})
			return result, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		outcomes[i] = outcome
	}
	// Documents are saved before the ledger transaction commits. A crash in
	// between leaves mutated documents with no ledger rows, so a retry
	// re-applies the batch: set_item_done and section updates converge to the
	// same state, but append_progress would add its line twice. Operators
	// recovering from a crash should check the progress log before replaying.
	for _, doc := range loaded {
		if err := a.docs.Save(doc); err != nil {
			return result, err
		}
	}

	now := a.store.Now().UTC().Format(time.RFC3339)
	entries := make([]Entry, len(fresh))
	for i, rec := range fresh {
		entries[i] = Entry{
			Ticket:         ticket,
			Scope:          scope,
			IdempotencyKey: rec.IdempotencyKey,
			Type:           rec.Type,
			PayloadHash:    rec.PayloadHash(),
			Outcome:        outcomes[i],
			InvocationID:   invocationID,
			AppliedAt:      now,
		}
	}
	if err := a.store.append(ctx, entries, fresh); err != nil {
		return result, err
	}
	result.Applied = entries
	return result, nil
}

// applyRecord performs one structured operation against its target document,
// loading each document at most once per batch.
func (a *Applier) applyRecord(ticket string, rec ActionRecord, loaded map[artifact.Kind]*artifact.Document) (string, error) {
	load := func(kind artifact.Kind) (*artifact.Document, error) {
		if doc, ok := loaded[kind]; ok {
			return doc, nil
		}
		doc, err := a.docs.Load(ticket, kind)
		if err != nil {
			return nil, err
		}
		loaded[kind] = doc
		return doc, nil
	}

	switch rec.Type {
	case ActionSetItemDone:
		doc, err := load(artifact.KindTasklist)
		if err != nil {
			return "", err
		}
		itemID := rec.StringParam("item_id")
		found, changed := doc.SetItemDone(itemID)
		if !found {
			return "", fmt.Errorf("task %q not found", itemID)
		}
		if !changed {
			return "noop: already done", nil
		}
		return "applied", nil

	case ActionAppendProgress:
		doc, err := load(artifact.KindTasklist)
		if err != nil {
			return "", err
		}
		doc.AppendProgress(rec.StringParam("entry"))
		return "applied", nil

	case ActionUpdateSection:
		kind, ok := artifact.KindNamed(rec.StringParam("doc"))
		if !ok {
			return "", fmt.Errorf("unknown document %q", rec.StringParam("doc"))
		}
		doc, err := load(kind)
		if err != nil {
			return "", err
		}
		if doc.SetSection(rec.StringParam("section"), rec.StringParam("content")) {
			return "applied", nil
		}
		return "noop: unchanged", nil

	case ActionSetArtifactStatus:
		kind, ok := artifact.KindNamed(rec.StringParam("doc"))
		if !ok {
			return "", fmt.Errorf("unknown document %q", rec.StringParam("doc"))
		}
		doc, err := load(kind)
		if err != nil {
			return "", err
		}
		status := rec.StringParam("status")
		switch status {
		case artifact.StatusDraft, artifact.StatusReady, artifact.StatusApproved:
		default:
			return "", fmt.Errorf("unknown artifact status %q", status)
		}
		if doc.Meta.Status == status {
			return "noop: unchanged", nil
		}
		doc.Meta.Status = status
		return "applied", nil
	}
	return "", fmt.Errorf("unknown action type %q", rec.Type)
}

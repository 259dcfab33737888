package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  ActionRecord
		wantErr string
	}{
		{
			name: "valid set item done",
			record: ActionRecord{Type: ActionSetItemDone, IdempotencyKey: "k1",
				Params: map[string]any{"item_id": "T1"}},
		},
		{
			name:    "missing key",
			record:  ActionRecord{Type: ActionSetItemDone, Params: map[string]any{"item_id": "T1"}},
			wantErr: "idempotency_key",
		},
		{
			name:    "missing param",
			record:  ActionRecord{Type: ActionSetItemDone, IdempotencyKey: "k1"},
			wantErr: `missing param "item_id"`,
		},
		{
			name: "empty string param",
			record: ActionRecord{Type: ActionAppendProgress, IdempotencyKey: "k1",
				Params: map[string]any{"entry": "   "}},
			wantErr: `empty param "entry"`,
		},
		{
			name:    "unknown type",
			record:  ActionRecord{Type: "doc.delete", IdempotencyKey: "k1"},
			wantErr: "unknown action type",
		},
		{
			name: "update section needs all params",
			record: ActionRecord{Type: ActionUpdateSection, IdempotencyKey: "k1",
				Params: map[string]any{"doc": "plan", "section": "Approach"}},
			wantErr: `missing param "content"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestActionRecord_PayloadHash(t *testing.T) {
	a := ActionRecord{Type: ActionSetItemDone, IdempotencyKey: "k1",
		Params: map[string]any{"item_id": "T1", "note": "x"}}
	b := ActionRecord{Type: ActionSetItemDone, IdempotencyKey: "other-key",
		Params: map[string]any{"note": "x", "item_id": "T1"}}

	// Hash covers type and params only; key and param order do not matter.
	assert.Equal(t, a.PayloadHash(), b.PayloadHash())

	c := ActionRecord{Type: ActionSetItemDone, IdempotencyKey: "k1",
		Params: map[string]any{"item_id": "T2"}}
	assert.NotEqual(t, a.PayloadHash(), c.PayloadHash())
}

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Action types the apply engine understands.
const (
	ActionSetItemDone       = "tasklist.set_item_done"
	ActionAppendProgress    = "tasklist.append_progress"
	ActionUpdateSection     = "doc.update_section"
	ActionSetArtifactStatus = "doc.set_status"
)

// ActionRecord is one mutation proposed by a stage operation. Records are
// validated and applied as a batch; the idempotency key makes re-running an
// operation safe.
type ActionRecord struct {
	Type           string         `json:"type"`
	IdempotencyKey string         `json:"idempotency_key"`
	Params         map[string]any `json:"params,omitempty"`
}

// Validate checks the record's shape without touching any artifact.
func (r ActionRecord) Validate() error {
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return fmt.Errorf("action record missing idempotency_key")
	}
	switch r.Type {
	case ActionSetItemDone:
		return r.requireParams("item_id")
	case ActionAppendProgress:
		return r.requireParams("entry")
	case ActionUpdateSection:
		return r.requireParams("doc", "section", "content")
	case ActionSetArtifactStatus:
		return r.requireParams("doc", "status")
	default:
		return fmt.Errorf("unknown action type %q", r.Type)
	}
}

func (r ActionRecord) requireParams(keys ...string) error {
	for _, key := range keys {
		val, ok := r.Params[key]
		if !ok {
			return fmt.Errorf("action %s missing param %q", r.Type, key)
		}
		if s, isStr := val.(string); isStr && strings.TrimSpace(s) == "" {
			return fmt.Errorf("action %s has empty param %q", r.Type, key)
		}
	}
	return nil
}

// StringParam returns the named parameter as a string, or "" when absent.
func (r ActionRecord) StringParam(key string) string {
	if val, ok := r.Params[key]; ok {
		if s, isStr := val.(string); isStr {
			return s
		}
	}
	return ""
}

// PayloadHash returns a stable digest of the record's type and parameters,
// used to detect idempotency-key reuse with a different payload. Map keys
// are sorted by the JSON encoder, so equal payloads always hash equally.
func (r ActionRecord) PayloadHash() string {
	data, err := json.Marshal(struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}{r.Type, r.Params})
	if err != nil {
		// Params came from JSON, so they re-encode; this is unreachable in
		// practice but must not panic.
		data = []byte(fmt.Sprintf("%s|%v", r.Type, r.Params))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Field names every request must carry regardless of the batch token contract.
const (
	FieldFromEmail  = "from_email"
	FieldFromName   = "from_name"
	FieldToEmail    = "to_email"
	FieldToName     = "to_name"
	FieldCcEmail    = "cc_email"
	FieldCcName     = "cc_name"
	FieldCategories = "categories"
	FieldAttachment = "attachment"
)

// Fields is the open payload mapping of a request: one key per CSV column or
// template token. Bookkeeping values (digest, added, sent) live on the Request
// record and never enter the map.
type Fields map[string]string

// Digest returns a stable content hash of the mapping. Keys are sorted by the
// JSON encoder, so the hash is independent of insertion order. The digest is
// the request's identity and dedup key across the whole store.
func (f Fields) Digest() string {
	encoded, err := json.Marshal(f)
	if err != nil {
		// A map[string]string always marshals.
		panic(err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func (f Fields) Clone() Fields {
	clone := make(Fields, len(f))
	for k, v := range f {
		clone[k] = v
	}
	return clone
}

// Categories splits the comma-separated categories field into a list.
func (f Fields) Categories() []string {
	raw, ok := f[FieldCategories]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// ValidateRequired checks the sender/recipient fields every request needs
// before it can be rendered into a deliverable message.
func (f Fields) ValidateRequired() error {
	for _, key := range []string{FieldFromEmail, FieldFromName, FieldToEmail} {
		if _, ok := f[key]; !ok {
			return fmt.Errorf("%w: must supply a %s", ErrMissingField, key)
		}
	}
	return nil
}

// Request is one recipient's pending or completed email within a batch.
// Once Sent flips to true the request is never re-sent and never mutated.
type Request struct {
	ID      string
	BatchID string
	Digest  string
	Fields  Fields
	Added   time.Time
	Sent    bool
}

// Package store defines the document store contract used by the gateway.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/resqmeals/gateway/core/fault"
)

// Doc is a raw JSON document.
type Doc = map[string]any

// Ack is the store's write acknowledgement.
type Ack struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// Store reads and writes JSON documents in named collections.
type Store interface {
	// Find returns up to limit documents matching sel. When fields is
	// non-empty only those fields are returned.
	Find(ctx context.Context, collection string, sel Selector, limit int, fields ...string) ([]Doc, error)
	// Get returns one document, or fault.ErrNotFound.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Put writes doc under its _id. A document without an _id is rejected
	// with fault.ErrValidation before any I/O.
	Put(ctx context.Context, collection string, doc any) (Ack, error)
}

// Collections names the collections the gateway reads and writes.
type Collections struct {
	Charities string `json:"charities"`
	Drivers   string `json:"drivers"`
	Audit     string `json:"audit"`
}

// SetDefaults fills unset collection names.
func (c *Collections) SetDefaults() {
	if c.Charities == "" {
		c.Charities = "charities"
	}
	if c.Drivers == "" {
		c.Drivers = "drivers"
	}
	if c.Audit == "" {
		c.Audit = "audit"
	}
}

// ToDoc converts a typed value into a raw document.
func ToDoc(v any) (Doc, error) {
	if d, ok := v.(Doc); ok {
		return d, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fault.New(fault.ErrValidation, "encode document", err)
	}
	var d Doc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fault.New(fault.ErrValidation, "encode document", err)
	}
	return d, nil
}

// DocID returns the non-empty _id of doc or a validation error.
func DocID(doc Doc) (string, error) {
	id, _ := doc["_id"].(string)
	if strings.TrimSpace(id) == "" {
		return "", fault.Newf(fault.ErrValidation, "put", "document has no _id")
	}
	return id, nil
}

// DecodeValid converts raw documents into T. Documents that do not decode
// are left out; skipped describes each of them with its index and _id.
func DecodeValid[T any](docs []Doc) (out []T, skipped []error) {
	out = make([]T, 0, len(docs))
	for i, d := range docs {
		var v T
		raw, err := json.Marshal(d)
		if err == nil {
			err = json.Unmarshal(raw, &v)
		}
		if err != nil {
			id, _ := d["_id"].(string)
			skipped = append(skipped, fault.New(fault.ErrShape, "decode document", fmt.Errorf("doc %d (%s): %w", i, id, err)))
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

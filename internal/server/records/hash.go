// Package records computes content fingerprints and classifies what changed
// between two versions of a record.
package records

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// Delta tags returned by Diff.
const (
	BlocksNone         = ""
	BlocksData         = "data"
	BlocksMetadata     = "metadata"
	BlocksDataMetadata = "data metadata"
	BlocksMetaAdded    = "metadata+"
	BlocksMetaRemoved  = "metadata-"
)

// canonical encodes v with sorted map keys at every level.
func canonical(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return b, nil
}

func fingerprint(b []byte) string {
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

// Hash fingerprints a data map and its meta blocks. Map key order does not
// affect the result, and nil and empty collections hash the same.
func Hash(data map[string]any, meta []map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	if meta == nil {
		meta = []map[string]any{}
	}
	b, err := canonical(struct {
		Data map[string]any   `json:"data"`
		Meta []map[string]any `json:"meta"`
	}{data, meta})
	if err != nil {
		return "", err
	}
	return fingerprint(b), nil
}

// HashRecordData fingerprints a content payload.
func HashRecordData(d *models.RecordData) (string, error) {
	if d == nil {
		return Hash(nil, nil)
	}
	return Hash(d.Data, d.Meta)
}

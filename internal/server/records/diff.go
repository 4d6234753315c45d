package records

import "github.com/dmitrijs2005/recordkeeper/internal/server/models"

// Diff classifies the change from prev to cur. A nil prev is compared as an
// empty payload.
//
// Meta blocks are compared as a multiset of their canonical encodings. Blocks
// only in cur count as added, blocks only in prev as removed; both at once
// (which covers a changed value) yield "metadata". The empty tag is returned
// only when prev and cur hash the same.
func Diff(prev, cur *models.RecordData) (string, error) {
	if prev == nil {
		prev = &models.RecordData{}
	}
	if cur == nil {
		cur = &models.RecordData{}
	}

	dataChanged, err := dataDiffers(prev.Data, cur.Data)
	if err != nil {
		return "", err
	}
	metaTag, err := metaDiff(prev.Meta, cur.Meta)
	if err != nil {
		return "", err
	}

	switch {
	case dataChanged && metaTag != BlocksNone:
		return BlocksDataMetadata, nil
	case dataChanged:
		return BlocksData, nil
	case metaTag != BlocksNone:
		return metaTag, nil
	}

	// Same blocks in a different order.
	hp, err := HashRecordData(prev)
	if err != nil {
		return "", err
	}
	hc, err := HashRecordData(cur)
	if err != nil {
		return "", err
	}
	if hp != hc {
		return BlocksMetadata, nil
	}
	return BlocksNone, nil
}

func dataDiffers(a, b map[string]any) (bool, error) {
	ha, err := Hash(a, nil)
	if err != nil {
		return false, err
	}
	hb, err := Hash(b, nil)
	if err != nil {
		return false, err
	}
	return ha != hb, nil
}

func metaDiff(prev, cur []map[string]any) (string, error) {
	counts := make(map[string]int, len(prev)+len(cur))
	for _, b := range prev {
		enc, err := canonical(b)
		if err != nil {
			return "", err
		}
		counts[string(enc)]--
	}
	for _, b := range cur {
		enc, err := canonical(b)
		if err != nil {
			return "", err
		}
		counts[string(enc)]++
	}

	var added, removed bool
	for _, n := range counts {
		switch {
		case n > 0:
			added = true
		case n < 0:
			removed = true
		}
	}

	switch {
	case added && removed:
		return BlocksMetadata, nil
	case added:
		return BlocksMetaAdded, nil
	case removed:
		return BlocksMetaRemoved, nil
	default:
		return BlocksNone, nil
	}
}

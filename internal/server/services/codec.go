package services

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

func encodeContent(d *models.RecordData) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return b, nil
}

func decodeContent(b []byte) (*models.RecordData, error) {
	d := &models.RecordData{}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return d, nil
}

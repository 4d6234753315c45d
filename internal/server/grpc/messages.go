package grpc

import "github.com/dmitrijs2005/recordkeeper/internal/server/models"

type CreateOrUpdateRecordsRequest struct {
	Records       []*models.Record             `json:"records"`
	SkipDupes     bool                         `json:"skipDupes"`
	Collaboration *models.CollaborationContext `json:"collaboration,omitempty"`
}

// RejectedRecord explains why a record was left out of a commit.
type RejectedRecord struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type CreateOrUpdateRecordsResponse struct {
	*models.TransferInfo
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

type BulkUpdateRecordsRequest struct {
	Query         models.BulkUpdateParam       `json:"query"`
	Collaboration *models.CollaborationContext `json:"collaboration,omitempty"`
}

type GetRecordRequest struct {
	ID            string                       `json:"id"`
	Version       int64                        `json:"version,omitempty"`
	Collaboration *models.CollaborationContext `json:"collaboration,omitempty"`
}

type RecordRequest struct {
	ID            string                       `json:"id"`
	Collaboration *models.CollaborationContext `json:"collaboration,omitempty"`
}

type PurgeVersionsRequest struct {
	ID            string                       `json:"id"`
	Count         int                          `json:"count"`
	Collaboration *models.CollaborationContext `json:"collaboration,omitempty"`
}

type QueryByLegalTagRequest struct {
	LegalTag      string                       `json:"legalTag"`
	Limit         int                          `json:"limit,omitempty"`
	Cursor        string                       `json:"cursor,omitempty"`
	Collaboration *models.CollaborationContext `json:"collaboration,omitempty"`
}

type QueryByLegalTagResponse struct {
	Records []*models.RecordMetadata `json:"records"`
	Cursor  string                   `json:"cursor,omitempty"`
}

type Empty struct{}

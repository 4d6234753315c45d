package models

import "github.com/dmitrijs2005/recordkeeper/internal/common"

type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
	OpPurge  OperationType = "purge"
)

// RecordProcessing is one unit of work inside a TransferBatch.
type RecordProcessing struct {
	Data      *RecordData
	Metadata  *RecordMetadata
	Operation OperationType

	// RecordBlocks tags what changed relative to the previous version.
	RecordBlocks string

	// Previous is the metadata row before this write, nil on create.
	Previous *RecordMetadata
}

// Locator returns the content locator written by this item.
func (p *RecordProcessing) Locator() string {
	return p.Metadata.LatestLocator()
}

// TransferBatch is one ingestion request's unit of work.
type TransferBatch struct {
	User           string
	Version        int64
	Records        []*RecordProcessing
	SkippedRecords []string
}

// TransferInfo is the caller-visible outcome of an ingestion request.
type TransferInfo struct {
	User           string                `json:"user"`
	Version        int64                 `json:"version"`
	RecordCount    int                   `json:"recordCount"`
	RecordIDs      []string              `json:"recordIds"`
	SkippedRecords []string              `json:"skippedRecordIds"`
	Rejected       []*common.RecordError `json:"-"`
}

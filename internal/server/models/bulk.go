package models

const (
	PatchAdd     = "add"
	PatchReplace = "replace"
	PatchRemove  = "remove"

	PathAclViewers = "/acl/viewers"
	PathAclOwners  = "/acl/owners"
	PathLegalTags  = "/legal/legaltags"
	PathTags       = "/tags"
)

// PatchOperation is one metadata-only change. For PathTags values are
// "key:value" pairs on add/replace and bare keys on remove.
type PatchOperation struct {
	Op    string   `json:"op"`
	Path  string   `json:"path"`
	Value []string `json:"value"`
}

// BulkUpdateParam targets ids, optionally suffixed with ":<expected version>".
type BulkUpdateParam struct {
	IDs []string         `json:"ids"`
	Ops []PatchOperation `json:"ops"`
}

type BulkUpdateResult struct {
	RecordCount           int      `json:"recordCount"`
	RecordIDs             []string `json:"recordIds"`
	NotFoundRecordIDs     []string `json:"notFoundRecordIds"`
	UnauthorizedRecordIDs []string `json:"unAuthorizedRecordIds"`
	LockedRecordIDs       []string `json:"lockedRecordIds"`
}

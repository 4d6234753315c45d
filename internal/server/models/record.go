// Package models defines the record entities shared by the ingestion
// pipeline, the stores and the transport layer.
package models

// Acl lists the groups that may read (viewers) and modify (owners) a record.
// Entries have the form "<group>@<domain>".
type Acl struct {
	Viewers []string `json:"viewers"`
	Owners  []string `json:"owners"`
}

// All returns viewers followed by owners.
func (a Acl) All() []string {
	out := make([]string, 0, len(a.Viewers)+len(a.Owners))
	out = append(out, a.Viewers...)
	return append(out, a.Owners...)
}

func (a Acl) Clone() Acl {
	return Acl{Viewers: cloneStrings(a.Viewers), Owners: cloneStrings(a.Owners)}
}

type ComplianceStatus string

const (
	ComplianceCompliant   ComplianceStatus = "compliant"
	ComplianceIncompliant ComplianceStatus = "incompliant"
)

// Legal is the legal classification of a record.
type Legal struct {
	LegalTags                  []string         `json:"legaltags"`
	OtherRelevantDataCountries []string         `json:"otherRelevantDataCountries"`
	Status                     ComplianceStatus `json:"status,omitempty"`
}

func (l Legal) Clone() Legal {
	return Legal{
		LegalTags:                  cloneStrings(l.LegalTags),
		OtherRelevantDataCountries: cloneStrings(l.OtherRelevantDataCountries),
		Status:                     l.Status,
	}
}

// Ancestry references the parent versions a record was derived from.
// Each parent is written as "<id>:<version>".
type Ancestry struct {
	Parents []string `json:"parents"`
}

// Record is the client-facing unit of ingestion.
type Record struct {
	ID       string            `json:"id,omitempty"`
	Kind     string            `json:"kind"`
	Version  int64             `json:"version,omitempty"`
	Data     map[string]any    `json:"data"`
	Meta     []map[string]any  `json:"meta,omitempty"`
	Acl      Acl               `json:"acl"`
	Legal    Legal             `json:"legal"`
	Ancestry *Ancestry         `json:"ancestry,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// RecordData is the immutable content of one record version. Only this part
// goes to the content store and contributes to the content hash.
type RecordData struct {
	Data map[string]any   `json:"data"`
	Meta []map[string]any `json:"meta,omitempty"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTags(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type RecordStatus string

const (
	StatusActive  RecordStatus = "active"
	StatusDeleted RecordStatus = "deleted"
)

// RecordMetadata is the mutable store-of-record row, one per record id.
type RecordMetadata struct {
	ID                  string            `json:"id"`
	Kind                string            `json:"kind"`
	PreviousVersionKind string            `json:"previousVersionKind,omitempty"`
	Status              RecordStatus      `json:"status"`
	User                string            `json:"user"`
	CreateTime          time.Time         `json:"createTime"`
	ModifyUser          string            `json:"modifyUser,omitempty"`
	ModifyTime          time.Time         `json:"modifyTime,omitempty"`
	ContentHash         string            `json:"hash,omitempty"`
	Acl                 Acl               `json:"acl"`
	Legal               Legal             `json:"legal"`
	Ancestry            *Ancestry         `json:"ancestry,omitempty"`
	Tags                map[string]string `json:"tags,omitempty"`

	// VersionPaths holds version locators, oldest first.
	VersionPaths []string `json:"gcsVersionPaths"`
}

// Clone returns a deep copy.
func (m *RecordMetadata) Clone() *RecordMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Acl = m.Acl.Clone()
	c.Legal = m.Legal.Clone()
	c.Tags = cloneTags(m.Tags)
	c.VersionPaths = cloneStrings(m.VersionPaths)
	if m.Ancestry != nil {
		c.Ancestry = &Ancestry{Parents: cloneStrings(m.Ancestry.Parents)}
	}
	return &c
}

func (m *RecordMetadata) HasVersions() bool {
	return len(m.VersionPaths) > 0
}

// LatestLocator returns the newest locator or "".
func (m *RecordMetadata) LatestLocator() string {
	if len(m.VersionPaths) == 0 {
		return ""
	}
	return m.VersionPaths[len(m.VersionPaths)-1]
}

// LatestVersion returns the version number of the newest locator, or 0.
func (m *RecordMetadata) LatestVersion() int64 {
	_, v, err := ParseLocator(m.LatestLocator())
	if err != nil {
		return 0
	}
	return v
}

// Versions returns all version numbers, oldest first. Malformed locators are
// skipped.
func (m *RecordMetadata) Versions() []int64 {
	out := make([]int64, 0, len(m.VersionPaths))
	for _, loc := range m.VersionPaths {
		if _, v, err := ParseLocator(loc); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (m *RecordMetadata) HasVersion(version int64) bool {
	for _, v := range m.Versions() {
		if v == version {
			return true
		}
	}
	return false
}

// Locator composes the content locator "<id>/<version>".
func Locator(id string, version int64) string {
	return id + "/" + strconv.FormatInt(version, 10)
}

// ParseLocator splits a locator at its last slash.
func ParseLocator(loc string) (string, int64, error) {
	i := strings.LastIndex(loc, "/")
	if i <= 0 || i == len(loc)-1 {
		return "", 0, fmt.Errorf("malformed locator %q", loc)
	}
	v, err := strconv.ParseInt(loc[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed locator %q: %w", loc, err)
	}
	return loc[:i], v, nil
}

// SplitVersionedID splits "<id>:<version>" at the last colon. ok is false when
// the suffix is not a number, in which case the whole input is the id.
func SplitVersionedID(s string) (id string, version int64, ok bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return s, 0, false
	}
	v, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return s, 0, false
	}
	return s[:i], v, true
}

package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

func TestApplyPatch(t *testing.T) {
	base := func() *models.RecordMetadata {
		return &models.RecordMetadata{
			Acl:   models.Acl{Viewers: []string{"v1@d"}, Owners: []string{"o1@d"}},
			Legal: models.Legal{LegalTags: []string{"t1"}},
			Tags:  map[string]string{"a": "1", "b": "2"},
		}
	}

	tests := []struct {
		name string
		ops  []models.PatchOperation
		want func(m *models.RecordMetadata)
	}{
		{
			name: "add viewer dedupes",
			ops:  []models.PatchOperation{{Op: models.PatchAdd, Path: models.PathAclViewers, Value: []string{"v1@d", "v2@d"}}},
			want: func(m *models.RecordMetadata) { m.Acl.Viewers = []string{"v1@d", "v2@d"} },
		},
		{
			name: "replace owners",
			ops:  []models.PatchOperation{{Op: models.PatchReplace, Path: models.PathAclOwners, Value: []string{"o2@d"}}},
			want: func(m *models.RecordMetadata) { m.Acl.Owners = []string{"o2@d"} },
		},
		{
			name: "remove legal tag",
			ops: []models.PatchOperation{
				{Op: models.PatchAdd, Path: models.PathLegalTags, Value: []string{"t2"}},
				{Op: models.PatchRemove, Path: models.PathLegalTags, Value: []string{"t1"}},
			},
			want: func(m *models.RecordMetadata) { m.Legal.LegalTags = []string{"t2"} },
		},
		{
			name: "add and remove tags",
			ops: []models.PatchOperation{
				{Op: models.PatchAdd, Path: models.PathTags, Value: []string{"c:3", "a:10"}},
				{Op: models.PatchRemove, Path: models.PathTags, Value: []string{"b"}},
			},
			want: func(m *models.RecordMetadata) { m.Tags = map[string]string{"a": "10", "c": "3"} },
		},
		{
			name: "replace tags",
			ops:  []models.PatchOperation{{Op: models.PatchReplace, Path: models.PathTags, Value: []string{"z:url:with:colons"}}},
			want: func(m *models.RecordMetadata) { m.Tags = map[string]string{"z": "url:with:colons"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base()
			applyPatch(got, tt.ops)
			want := base()
			tt.want(want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("applyPatch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

package records

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

func TestHash_KeyOrderIndependent(t *testing.T) {
	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"x":1,"y":{"p":"q","r":[1,2]}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"y":{"r":[1,2],"p":"q"},"x":1}`), &b))

	ha, err := Hash(a, nil)
	require.NoError(t, err)
	hb, err := Hash(b, nil)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEmpty(t, ha)
}

func TestHash_NumericRepresentationStable(t *testing.T) {
	ha, err := Hash(map[string]any{"n": 1}, nil)
	require.NoError(t, err)
	hb, err := Hash(map[string]any{"n": float64(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHash_NilEqualsEmpty(t *testing.T) {
	ha, err := Hash(nil, nil)
	require.NoError(t, err)
	hb, err := Hash(map[string]any{}, []map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	hc, err := HashRecordData(nil)
	require.NoError(t, err)
	assert.Equal(t, ha, hc)
}

func TestHash_IgnoresAclAndLegal(t *testing.T) {
	r1 := &models.Record{
		Data: map[string]any{"name": "well-1"},
		Acl:  models.Acl{Viewers: []string{"a@x"}},
	}
	r2 := &models.Record{
		Data:  map[string]any{"name": "well-1"},
		Acl:   models.Acl{Viewers: []string{"b@x"}, Owners: []string{"c@x"}},
		Legal: models.Legal{LegalTags: []string{"other"}},
		Tags:  map[string]string{"k": "v"},
	}

	h1, err := HashRecordData(&models.RecordData{Data: r1.Data, Meta: r1.Meta})
	require.NoError(t, err)
	h2, err := HashRecordData(&models.RecordData{Data: r2.Data, Meta: r2.Meta})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHash_SensitiveToContent(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"a": 2}, nil)
	require.NoError(t, err)
	h3, err := Hash(map[string]any{"a": 1}, []map[string]any{{"kind": "Unit"}})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestHash_Unencodable(t *testing.T) {
	_, err := Hash(map[string]any{"ch": make(chan int)}, nil)
	assert.Error(t, err)
}

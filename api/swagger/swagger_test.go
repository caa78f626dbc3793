package swagger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestDocumentIsRegisteredAndValidJSON(t *testing.T) {
	raw, err := swag.ReadDoc()
	require.NoError(t, err)

	var doc struct {
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Contains(t, doc.Paths, "/submissions/{id}/decision")
	assert.Contains(t, doc.Paths, "/files/{token}")
	assert.Contains(t, doc.Paths, "/users/{id}")
}

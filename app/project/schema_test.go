package project

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema()
	require.NotNil(t, schema)
	assert.Equal(t, "Tunivo projects storage schema", schema.Title)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	for _, field := range []string{"createdAt", "downloadUrl", "autoTranscribe", "userEmail"} {
		assert.Contains(t, string(data), `"`+field+`"`)
	}
	assert.Contains(t, string(data), `"16:9"`)
}

//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Embed_RealAPI(t *testing.T) {
	apiKey := os.Getenv("COACHKB_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("COACHKB_OPENAI_API_KEY not set, skipping integration test")
	}

	client, err := NewClientFromConfig(Config{APIKey: apiKey})
	require.NoError(t, err)

	embedding, err := client.Embed(context.Background(), "Visual learners benefit from diagrams.")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

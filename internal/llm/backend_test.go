package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		key     string
		want    Backend
		wantErr bool
	}{
		{key: "openai", want: BackendOpenAI},
		{key: "llama", want: BackendLlama},
		{key: " llama ", want: BackendLlama},
		{key: "gemini", wantErr: true},
		{key: "OpenAI", wantErr: true},
		{key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseBackend(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

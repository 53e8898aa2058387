package checkpoint_test

import (
	"testing"

	"github.com/mpdagents/mpdchat/internal/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Summary  string            `cbor:"summary"`
	Messages []string          `cbor:"messages"`
	Meta     map[string]string `cbor:"meta"`
}

func TestCodec_Deterministic(t *testing.T) {
	t.Parallel()

	v := sample{
		Summary:  "the user likes gophers",
		Messages: []string{"hi", "hello"},
		Meta:     map[string]string{"b": "2", "a": "1", "c": "3"},
	}

	first, err := checkpoint.Encode(v)
	require.NoError(t, err)
	for range 10 {
		again, err := checkpoint.Encode(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var got sample
	require.NoError(t, checkpoint.Decode(first, &got))
	assert.Equal(t, v, got)
}

func TestCodec_DecodeGarbage(t *testing.T) {
	t.Parallel()

	var got sample
	assert.Error(t, checkpoint.Decode([]byte("not zstd"), &got))
}

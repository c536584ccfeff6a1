package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "runs/abc.json", "application/json", bytes.NewBufferString(`[]`))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/abc.json", uri)

	data, contentType, ok := store.Object("runs/abc.json")
	require.True(t, ok)
	require.Equal(t, "[]", string(data))
	require.Equal(t, "application/json", contentType)

	data[0] = 'x'
	again, _, _ := store.Object("runs/abc.json")
	require.Equal(t, "[]", string(again))

	_, _, ok = store.Object("missing")
	require.False(t, ok)
}

package docker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownEngine(t *testing.T) {
	a := NewAdapter(map[string]string{"e1": "unix:///run/podman/podman.sock"})
	defer a.Close()

	_, err := a.IsRootful(context.Background(), "e2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown engine "e2"`)
}

func TestClientIsReusedPerEngine(t *testing.T) {
	a := NewAdapter(map[string]string{"e1": "unix:///run/podman/podman.sock"})
	defer a.Close()

	first, err := a.client("e1")
	require.NoError(t, err)
	second, err := a.client("e1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "unix:///run/podman/podman.sock", first.DaemonHost())
}

func TestChunkWriterForwardsStream(t *testing.T) {
	var got []string
	w := chunkWriter{stream: "stderr", onChunk: func(stream, data string) {
		got = append(got, stream+":"+data)
	}}

	n, err := w.Write([]byte("org.osbuild.rpm"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, []string{"stderr:org.osbuild.rpm"}, got)
}

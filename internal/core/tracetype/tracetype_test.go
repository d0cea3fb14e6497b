package tracetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultExperimentType(t *testing.T) {
	r := NewRegistry()
	tt, ok := r.Get(DefaultExperimentType)
	require.True(t, ok)
	assert.True(t, tt.Experiment)

	_, ok = r.Get("")
	assert.False(t, ok)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TraceType{ID: "text", Name: "Text"}))
	require.NoError(t, r.Register(TraceType{ID: "text", Name: "Plain text"}))
	assert.Error(t, r.Register(TraceType{}))

	tt, ok := r.Get("text")
	require.True(t, ok)
	assert.Equal(t, "Plain text", tt.Name)
	assert.Len(t, r.All(), 2)
}

func TestRegistry_DetectDirectoryTrace(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TraceType{ID: "ctf", DirectoryMarker: "metadata"}))

	traceDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(traceDir, "metadata"), nil, 0644))
	plainDir := t.TempDir()

	assert.Equal(t, "ctf", r.DetectDirectoryTrace(traceDir))
	assert.True(t, r.IsDirectoryTrace(traceDir))
	assert.False(t, r.IsDirectoryTrace(plainDir))
}

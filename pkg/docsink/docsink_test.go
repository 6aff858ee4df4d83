package docsink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownFile_CreatesSectionOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipam.md")
	require.NoError(t, os.WriteFile(path, []byte("# IPAM\n\nIntro text.\n"), 0o644))

	sink := NewMarkdownFile(path, nil)
	require.NoError(t, sink.Append(context.Background(), []string{"- first note"}))
	require.NoError(t, sink.Append(context.Background(), []string{"- second note"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 1, strings.Count(content, sectionHeader))
	assert.Contains(t, content, "- first note")
	assert.Contains(t, content, "- second note")
	assert.True(t, strings.HasPrefix(content, "# IPAM"))
}

func TestMarkdownFile_MissingDocumentIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.md")

	sink := NewMarkdownFile(path, nil)
	require.NoError(t, sink.Append(context.Background(), []string{"- note"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), sectionHeader))
}

func TestMarkdownFile_EmptyNotesIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	sink := NewMarkdownFile(path, nil)
	require.NoError(t, sink.Append(context.Background(), nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBuildNote(t *testing.T) {
	note := BuildNote("example.com", "web.example.com", "A", "192.0.2.7", 60)
	assert.Contains(t, note, "A record web.example.com")
	assert.Contains(t, note, "zone example.com")
	assert.Contains(t, note, "192.0.2.7")
}

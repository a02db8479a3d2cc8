package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveDocuments(t *testing.T) {
	root := t.TempDir()
	inbox := filepath.Join(root, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	committed := filepath.Join(inbox, "a.pdf")
	skipped := filepath.Join(inbox, "b.pdf")
	for _, p := range []string{committed, skipped} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	report := &ProcessingReport{Documents: []DocumentReport{
		{DocumentID: "a.pdf", Path: committed, NSN: "5331011267254", RequestNumber: "SPE7M125T1234", State: StateCommitted},
		{DocumentID: "b.pdf", Path: skipped, State: StateSkipped},
		{DocumentID: "mem", State: StateFailed},
	}}
	processed := filepath.Join(root, "processed")
	reviewed := filepath.Join(root, "reviewed")

	moved, err := ArchiveDocuments(report, processed, reviewed)
	require.NoError(t, err)
	assert.Len(t, moved, 2)
	assert.Equal(t, filepath.Join(processed, "5331011267254", "SPE7M125T1234", "a.pdf"), moved["a.pdf"])
	assert.Equal(t, filepath.Join(reviewed, "b.pdf"), moved["b.pdf"])

	assert.NoFileExists(t, committed)
	assert.FileExists(t, moved["a.pdf"])
	assert.FileExists(t, moved["b.pdf"])
}

func TestSafeSegment(t *testing.T) {
	assert.Equal(t, "SPE_1", safeSegment("SPE/1", "x"))
	assert.Equal(t, "x", safeSegment("", "x"))
	assert.Equal(t, "x", safeSegment("..", "x"))
}

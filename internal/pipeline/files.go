package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArchiveDocuments moves the source files of a finished run. Committed
// documents go to processedDir/<nsn>/<request>/, everything else to
// reviewedDir. Documents without a file are ignored. Returns the new path
// per document id.
func ArchiveDocuments(report *ProcessingReport, processedDir, reviewedDir string) (map[string]string, error) {
	moved := map[string]string{}
	for _, d := range report.Documents {
		if d.Path == "" {
			continue
		}
		dest := reviewedDir
		if d.State == StateCommitted {
			dest = filepath.Join(processedDir, safeSegment(d.NSN, "unknown-nsn"), safeSegment(d.RequestNumber, "unknown-request"))
		}
		target, err := moveFile(d.Path, dest)
		if err != nil {
			return moved, fmt.Errorf("archive %s: %w", d.DocumentID, err)
		}
		moved[d.DocumentID] = target
	}
	return moved, nil
}

func safeSegment(value, fallback string) string {
	value = unsafePathChars.ReplaceAllString(value, "_")
	if value == "" || value == "." || value == ".." {
		return fallback
	}
	return value
}

// moveFile renames src into dir, falling back to copy+remove across
// devices. An existing file of the same name is replaced.
func moveFile(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, os.Remove(src)
}

// Package docsink appends human-readable change notes to an external
// operations document. Appends are best effort: a sink failure is logged by
// the caller and never fails the job that produced the notes.
package docsink

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sectionHeader marks where automation notes accumulate inside the document.
const sectionHeader = "## DNS Automation Notes"

// Sink records change notes somewhere humans will read them.
type Sink interface {
	Append(ctx context.Context, notes []string) error
}

// BuildNote renders one change note line for a record mutation.
func BuildNote(zone, name, recordType, content string, ttl int) string {
	return fmt.Sprintf("- %s: upserted %s record %s in zone %s -> %s (ttl %ds)",
		time.Now().UTC().Format(time.RFC3339), recordType, name, zone, content, ttl)
}

// MarkdownFile appends notes under a fixed section of a markdown document.
type MarkdownFile struct {
	path   string
	logger *zap.Logger
}

var _ Sink = (*MarkdownFile)(nil)

// NewMarkdownFile returns a sink writing to the document at path. The file is
// not required to exist yet; the section header is created on first append.
func NewMarkdownFile(path string, logger *zap.Logger) *MarkdownFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkdownFile{path: path, logger: logger}
}

// Append adds the notes to the document, creating the notes section if the
// document does not carry one yet.
func (m *MarkdownFile) Append(ctx context.Context, notes []string) error {
	if len(notes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := os.ReadFile(m.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read document: %w", err)
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	if !strings.Contains(string(existing), sectionHeader) {
		if len(existing) > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sectionHeader + "\n\n")
	}
	for _, note := range notes {
		b.WriteString(note)
		b.WriteString("\n")
	}

	if err := os.WriteFile(m.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	m.logger.Debug("appended change notes", zap.String("path", m.path), zap.Int("count", len(notes)))
	return nil
}

// Discard is a sink that drops every note. Used when no document is
// configured.
type Discard struct{}

var _ Sink = Discard{}

func (Discard) Append(ctx context.Context, notes []string) error { return nil }

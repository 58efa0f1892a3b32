package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/translator"
)

// Writer stores one artifact file per job id under the approved or flagged
// directory. Files are keyed by job id and overwritable, so a crash between
// an artifact write and the queue commit leaves at worst an orphan that the
// next attempt replaces.
type Writer struct {
	approvedDir string
	flaggedDir  string
}

func NewWriter(approvedDir, flaggedDir string) *Writer {
	return &Writer{approvedDir: approvedDir, flaggedDir: flaggedDir}
}

type record struct {
	Paper     *translator.TranslatedPaper `json:"paper"`
	QAReasons []string                    `json:"qa_reasons,omitempty"`
}

// WriteApproved stores a QA-passed translation and returns its path.
func (w *Writer) WriteApproved(jobID string, doc *translator.TranslatedPaper) (string, error) {
	return w.write(w.approvedDir, jobID, record{Paper: doc})
}

// WriteFlagged stores a QA-flagged translation together with the reasons, for
// later review.
func (w *Writer) WriteFlagged(jobID string, doc *translator.TranslatedPaper, reasons []string) (string, error) {
	return w.write(w.flaggedDir, jobID, record{Paper: doc, QAReasons: reasons})
}

func (w *Writer) write(dir, jobID string, rec record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	path := filepath.Join(dir, jobID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replace artifact: %w", err)
	}
	return path, nil
}

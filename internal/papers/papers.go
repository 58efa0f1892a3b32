package papers

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Paper is one harvested ChinaXiv record, the unit of translatable work.
type Paper struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Subjects []string `json:"subjects,omitempty"`
	Creators []string `json:"creators,omitempty"`
}

// JobID derives the stable queue job id for a paper. The same paper always
// maps to the same id, so re-initializing the queue from the same record set
// never creates duplicate jobs.
func JobID(paperID string) string {
	sum := sha1.Sum([]byte(paperID))
	return hex.EncodeToString(sum[:12])
}

// LoadRecords reads a JSON-lines records file produced by the harvester.
// Blank lines are skipped; a malformed line or a record without an id is an
// error rather than silently dropped work.
func LoadRecords(path string) ([]Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	ret := make([]Paper, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var p Paper
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, fmt.Errorf("parse record at line %d: %w", lineNo, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("record at line %d has no id", lineNo)
		}
		ret = append(ret, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	return ret, nil
}

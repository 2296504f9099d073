package segment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadManifest reads segmented utterances in JSON Lines form, one
// {"id": ..., "clusters": [...], "boundaries": [...]} object per line.
// Blank lines and lines starting with '#' are skipped.
func ReadManifest(r io.Reader) ([]Utterance, error) {
	var utts []Utterance
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var u Utterance
		if err := json.Unmarshal([]byte(line), &u); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		utts = append(utts, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return utts, nil
}

// LoadManifestFile reads a manifest from a file.
func LoadManifestFile(path string) ([]Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadManifest(f)
}

// WriteManifest writes utterances as JSON Lines.
func WriteManifest(w io.Writer, utts []Utterance) error {
	enc := json.NewEncoder(w)
	for i, u := range utts {
		if err := enc.Encode(u); err != nil {
			return fmt.Errorf("utterance %d: %w", i, err)
		}
	}
	return nil
}

package ingest

import (
	"bufio"
	"fmt"
	"os"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
	"glycoscope/internal/normalize"
)

// LoadFile reads a whole CGM export (CSV or NDJSON) and groups the
// readings by subject. Lines that fail to parse are counted and
// skipped rather than aborting the load.
func LoadFile(path string, cfg *config.Config) (map[string][]model.Reading, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	parser := NewParser()
	bySubject := make(map[string][]model.Reading)
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		fields, err := parser.ParseLine(scanner.Text())
		if err != nil {
			skipped++
			continue
		}
		if fields == nil {
			continue
		}
		reading, subjectID, err := normalize.Normalize(*fields, cfg)
		if err != nil {
			skipped++
			continue
		}
		bySubject[subjectID] = append(bySubject[subjectID], reading)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read export: %w", err)
	}
	return bySubject, skipped, nil
}

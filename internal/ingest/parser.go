package ingest

import (
	"encoding/csv"
	"strings"

	"glycoscope/internal/normalize"
)

// Parser turns raw export lines into reading fields. CGM vendors ship
// CSV with wildly different headers and some gateways emit NDJSON, so
// both shapes are accepted on the same stream.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.ReadingFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	return nil, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.ReadingFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.ReadingFields{}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
	} else {
		// Positional fallback: timestamp, subject, value, unit, flag.
		if len(record) >= 1 {
			fields.Timestamp = record[0]
		}
		if len(record) >= 2 {
			fields.SubjectID = record[1]
		}
		if len(record) >= 3 {
			fields.Value = record[2]
		}
		if len(record) >= 4 {
			fields.Unit = record[3]
		}
		if len(record) >= 5 {
			fields.Flag = record[4]
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "timestamp", "time", "ts", "date", "datetime", "device timestamp",
			"subject", "subject_id", "patient", "patient_id",
			"glucose", "sgv", "bg", "value", "glucose value (mmol/l)", "glucose value (mg/dl)",
			"unit", "units", "flag", "type", "record type":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.ReadingFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts", "date", "datetime", "device timestamp":
		fields.Timestamp = value
	case "subject", "subject_id", "subjectid", "patient", "patient_id", "user":
		fields.SubjectID = value
	case "value", "glucose", "sgv", "bg", "reading", "glucose value (mmol/l)", "glucose value (mg/dl)":
		fields.Value = value
		// Per-column units beat any separate unit column.
		if strings.Contains(name, "mmol") {
			fields.Unit = "mmol/L"
		} else if strings.Contains(name, "mg/dl") {
			fields.Unit = "mg/dL"
		}
	case "unit", "units":
		if fields.Unit == "" {
			fields.Unit = value
		}
	case "flag", "type", "record type", "source":
		fields.Flag = value
	}
}

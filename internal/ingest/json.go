package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"glycoscope/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ReadingFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.ReadingFields {
	flat := make(map[string]string, len(obj))
	for key, val := range obj {
		flat[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields := &normalize.ReadingFields{}
	fields.Timestamp = firstNonEmpty(flat, "timestamp", "time", "ts", "date", "datetime", "datestring")
	fields.SubjectID = firstNonEmpty(flat, "subject_id", "subject", "patient_id", "patient", "user")
	fields.Value = firstNonEmpty(flat, "value", "glucose", "sgv", "bg", "reading")
	fields.Unit = firstNonEmpty(flat, "unit", "units")
	fields.Flag = firstNonEmpty(flat, "flag", "type", "source")
	return fields
}

package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"glycoscope/internal/config"
	"glycoscope/internal/model"
)

// Plausible sensor range in mmol/L; values outside are malformed data,
// not physiology.
const (
	minPlausible = 1.0
	maxPlausible = 35.0
)

var ErrEmptySeries = errors.New("series has no usable readings")

// ReadingFields is the raw, stringly field bag a source hands over
// before unit and timestamp normalization.
type ReadingFields struct {
	Timestamp string
	SubjectID string
	Value     string
	Unit      string
	Flag      string
	Raw       string
}

// Normalize converts raw fields into a canonical mmol/L reading.
// Malformed input is a data error and never reaches the pipeline.
func Normalize(fields ReadingFields, cfg *config.Config) (model.Reading, string, error) {
	subject := strings.TrimSpace(fields.SubjectID)
	if subject == "" {
		subject = cfg.Ingest.Parser.DefaultSubject
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	if strings.TrimSpace(fields.Timestamp) == "" {
		return model.Reading{}, "", errors.New("reading has no timestamp")
	}
	ts, err := ParseTimestamp(fields.Timestamp, loc)
	if err != nil {
		return model.Reading{}, "", fmt.Errorf("parse timestamp: %w", err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields.Value), 64)
	if err != nil {
		return model.Reading{}, "", fmt.Errorf("parse glucose value: %w", err)
	}
	unit := ParseUnit(fields.Unit, cfg.Ingest.Parser.DefaultUnit)
	if unit == model.UnitMgDL {
		value = model.MgDLToMmolL(value)
	}
	if value < minPlausible || value > maxPlausible {
		return model.Reading{}, "", fmt.Errorf("glucose value %.2f mmol/L outside plausible range", value)
	}

	return model.Reading{
		Timestamp: ts.UTC(),
		Value:     value,
		Flag:      ParseFlag(fields.Flag),
	}, subject, nil
}

func ParseUnit(raw, fallback string) model.Unit {
	n := strings.ToLower(strings.TrimSpace(raw))
	switch n {
	case "mmol/l", "mmol", "mmoll":
		return model.UnitMmolL
	case "mg/dl", "mgdl", "mg":
		return model.UnitMgDL
	}
	if strings.EqualFold(fallback, string(model.UnitMgDL)) {
		return model.UnitMgDL
	}
	return model.UnitMmolL
}

func ParseFlag(raw string) model.Flag {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "reference", "fingerstick", "smbg", "calibration":
		return model.FlagReference
	default:
		return model.FlagSensor
	}
}

// BuildSeries orders readings, coalesces duplicate timestamps by
// averaging them, and returns a series with strictly increasing
// timestamps. This is the only place duplicates are resolved.
func BuildSeries(id, subjectID string, readings []model.Reading) (*model.ReadingSeries, error) {
	if len(readings) == 0 {
		return nil, ErrEmptySeries
	}
	sorted := make([]model.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make([]model.Reading, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		sum := sorted[i].Value
		flag := sorted[i].Flag
		for j < len(sorted) && sorted[j].Timestamp.Equal(sorted[i].Timestamp) {
			sum += sorted[j].Value
			if sorted[j].Flag == model.FlagReference {
				flag = model.FlagReference
			}
			j++
		}
		out = append(out, model.Reading{
			Timestamp: sorted[i].Timestamp,
			Value:     sum / float64(j-i),
			Flag:      flag,
		})
		i = j
	}
	if len(out) == 0 {
		return nil, ErrEmptySeries
	}
	return &model.ReadingSeries{ID: id, SubjectID: subjectID, Readings: out}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

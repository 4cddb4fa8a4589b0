package engine

import (
	"time"

	"glycoscope/internal/model"
)

// bufferHorizon bounds how much history a streaming subject buffer
// retains; analysis windows are 3-30 days.
const bufferHorizon = 30 * 24 * time.Hour

// SubjectBuffer accumulates one subject's readings as they stream in.
// Eviction keeps the buffer within the analysis horizon.
type SubjectBuffer struct {
	readings []model.Reading
	head     int
}

func NewSubjectBuffer() *SubjectBuffer {
	return &SubjectBuffer{readings: make([]model.Reading, 0, 256)}
}

func (b *SubjectBuffer) Add(r model.Reading) {
	b.readings = append(b.readings, r)
}

func (b *SubjectBuffer) Evict(cutoff time.Time) {
	for b.head < len(b.readings) {
		if !b.readings[b.head].Timestamp.Before(cutoff) {
			break
		}
		b.head++
	}
	if b.head > 0 && b.head*2 >= len(b.readings) {
		b.readings = append([]model.Reading{}, b.readings[b.head:]...)
		b.head = 0
	}
}

func (b *SubjectBuffer) Len() int {
	return len(b.readings) - b.head
}

// Snapshot copies the live portion of the buffer so analysis works on
// an immutable view while ingestion keeps appending.
func (b *SubjectBuffer) Snapshot() []model.Reading {
	out := make([]model.Reading, len(b.readings)-b.head)
	copy(out, b.readings[b.head:])
	return out
}

package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrorSampleSize bounds the error list stored on a run.
const ErrorSampleSize = 10

// ErrorEntry is one element of a run's bounded error sample.
type ErrorEntry struct {
	InvoiceID uuid.UUID `json:"invoiceId"`
	Recipient string    `json:"recipient"`
	Code      string    `json:"code,omitempty"`
	Type      string    `json:"type,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// ErrorSample keeps the newest entries up to a fixed capacity, newest first.
type ErrorSample struct {
	capacity int
	entries  []ErrorEntry
}

// NewErrorSample returns an empty sample. A non-positive capacity falls back to ErrorSampleSize.
func NewErrorSample(capacity int) *ErrorSample {
	if capacity <= 0 {
		capacity = ErrorSampleSize
	}
	return &ErrorSample{capacity: capacity}
}

// Add inserts e. Entries with equal timestamps keep insertion order reversed,
// so later additions count as newer.
func (s *ErrorSample) Add(e ErrorEntry) {
	idx := sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].At.After(e.At)
	})
	s.entries = append(s.entries, ErrorEntry{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = e
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
}

// Entries returns a copy of the sample, newest first.
func (s *ErrorSample) Entries() []ErrorEntry {
	out := make([]ErrorEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len is the number of retained entries.
func (s *ErrorSample) Len() int { return len(s.entries) }

// SampleFromItems builds a bounded sample from the error items in results.
func SampleFromItems(results []ItemResult) []ErrorEntry {
	sample := NewErrorSample(ErrorSampleSize)
	for _, r := range results {
		if r.Status != ItemError {
			continue
		}
		sample.Add(ErrorEntry{
			InvoiceID: r.InvoiceID,
			Recipient: r.RecipientEmail,
			Code:      r.ErrorCode,
			Type:      r.ErrorType,
			Message:   r.ErrorMessage,
			At:        r.At,
		})
	}
	return sample.Entries()
}

// CountOutcomes tallies attempted, sent and error counts over item results.
func CountOutcomes(results []ItemResult) (attempted, sent, errors int) {
	for _, r := range results {
		attempted++
		switch r.Status {
		case ItemSent:
			sent++
		case ItemError:
			errors++
		}
	}
	return attempted, sent, errors
}

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mosaicolabs/mosaico-go/internal/models"
	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// SequenceDataStreamer is a time-ordered k-way merge over N concurrent
// TopicDataStreamers.
type SequenceDataStreamer struct {
	topicReaders map[string]*TopicDataStreamer
	topicOrder   []string
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

// NewSequenceDataStreamer wraps an already-opened set of per-topic
// streamers, keyed by topic name. Construction fails if the set is empty.
func NewSequenceDataStreamer(readers map[string]*TopicDataStreamer, logger *slog.Logger, metrics *telemetry.Metrics) (*SequenceDataStreamer, error) {
	if len(readers) == 0 {
		return nil, fmt.Errorf("handlers: sequence data streamer requires at least one topic reader")
	}
	if logger == nil {
		logger = slog.Default()
	}
	order := make([]string, 0, len(readers))
	for name := range readers {
		order = append(order, name)
	}
	sort.Strings(order)
	return &SequenceDataStreamer{topicReaders: readers, topicOrder: order, logger: logger, metrics: metrics}, nil
}

// prePeekAll ensures every reader without a currently-peeked row attempts to
// peek one, required for correctness on the first iteration and whenever a
// reader's buffer has just been drained by the caller.
func (s *SequenceDataStreamer) prePeekAll() {
	for _, name := range s.topicOrder {
		r := s.topicReaders[name]
		if _, err := r.peekNextRow(); err != nil {
			s.logger.Error("peek failed for topic reader; this reader yields no more rows", "topic", name, "error", err)
		}
	}
}

// winner selects the reader with the strictly-smallest peeked timestamp,
// breaking ties by lexicographic topic-name order (an explicit spec
// invariant stronger than insertion-order tie-breaking).
func (s *SequenceDataStreamer) winner() (string, float64) {
	winnerName := ""
	minTs := math.Inf(1)
	for _, name := range s.topicOrder {
		ts := s.topicReaders[name].peekedTimestamp()
		if ts < minTs {
			minTs = ts
			winnerName = name
		}
		// Equal timestamps: topicOrder is already lexicographic, so the
		// first-seen (smallest name) reader already won and later equal
		// entries are correctly skipped by the strict "<" comparison.
	}
	return winnerName, minTs
}

// Next advances the merge by one row: pre-peeks every reader lacking a
// buffered row, selects the minimum-timestamp winner, materializes and
// advances it, and returns (topic-name, Message). Returns ok=false when
// every reader is exhausted.
func (s *SequenceDataStreamer) Next() (topic string, msg *models.Message, ok bool, err error) {
	s.prePeekAll()

	name, ts := s.winner()
	if math.IsInf(ts, 1) {
		return "", nil, false, nil
	}

	m, err := s.topicReaders[name].consumeAndAdvance()
	if err != nil {
		return "", nil, false, err
	}
	s.metrics.RecordMergedRow(context.Background(), name)
	return name, m, true, nil
}

// NextTimestamp mirrors Next's selection step without advancing any reader;
// returns ok=false when every reader is exhausted.
func (s *SequenceDataStreamer) NextTimestamp() (int64, bool) {
	s.prePeekAll()
	_, ts := s.winner()
	if math.IsInf(ts, 1) {
		return 0, false
	}
	return int64(ts), true
}

// Close cancels every child reader, logging per-child failures; it never
// raises.
func (s *SequenceDataStreamer) Close() {
	for _, name := range s.topicOrder {
		s.topicReaders[name].Close()
	}
}

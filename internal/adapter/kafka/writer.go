package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/vegplot-etl/internal/config"
	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// batchSize bounds the messages sent in one WriteMessages call.
const batchSize = 500

// keyColumns are tried in order to pick a message key for a row.
var keyColumns = []string{domain.ColSiteVisitCode, domain.ColSiteCode, domain.ColTaxonCode}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes processed rows to a Kafka topic, one JSON message per
// row. It implements pipeline.Loader.
//
// A failed Load remembers how many rows of the table already went out, so a
// retried Load resumes after them instead of publishing them twice.
type Writer struct {
	writer messageWriter
	runID  string
	logger *slog.Logger

	mu   sync.Mutex
	sent map[string]int
}

// NewWriter creates a Kafka producer for the configured sink topic. Every
// message it sends carries the same run ID.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, uuid.NewString(), logger)
}

func newWriter(w messageWriter, runID string, logger *slog.Logger) *Writer {
	return &Writer{writer: w, runID: runID, logger: logger, sent: make(map[string]int)}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// RunID returns the ID stamped on every message.
func (w *Writer) RunID() string { return w.runID }

// Load serializes and publishes every row of t in batches. Rows sharing a
// visit or site key land on the same partition.
func (w *Writer) Load(ctx context.Context, name string, t *table.Table) error {
	if t.Len() == 0 {
		return nil
	}
	processedAt := domain.Now().UTC().Format(time.RFC3339)
	key := keyColumn(t)

	w.mu.Lock()
	defer w.mu.Unlock()

	start := w.sent[name]
	if start > t.Len() {
		start = 0
	}
	if start > 0 {
		w.logger.Info("resuming publish", "table", name, "already_sent", start, "run_id", w.runID)
	}

	msgs := make([]kafkago.Message, 0, min(t.Len()-start, batchSize))
	flush := func() error {
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		w.sent[name] += len(msgs)
		msgs = msgs[:0]
		return nil
	}
	for _, r := range t.Rows[start:] {
		msg, err := serializeToMessage(t.Columns, r, key, name, w.runID, processedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(msgs) > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	delete(w.sent, name)
	w.logger.Debug("rows published", "table", name, "rows", t.Len(), "run_id", w.runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func keyColumn(t *table.Table) string {
	for _, c := range keyColumns {
		if t.Has(c) {
			return c
		}
	}
	return ""
}

// serializeToMessage marshals one row into a Kafka message. Only the
// table's columns are encoded.
func serializeToMessage(cols []string, r table.Row, key, name, runID, processedAt string) (kafkago.Message, error) {
	fields := make(map[string]string, len(cols))
	for _, c := range cols {
		fields[c] = r[c]
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s row: %w", name, err)
	}
	var k []byte
	if key != "" {
		k = []byte(r[key])
	}
	return kafkago.Message{
		Key:   k,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(name)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(processedAt)},
		},
	}, nil
}

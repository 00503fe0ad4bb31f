// Package ingest consumes complaint events from Kafka and writes them to the
// complaint store in batches.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/metrics"
	"github.com/mbd888/muletrace/internal/retry"
)

// SourceKafka labels metrics for stream-ingested events.
const SourceKafka = "kafka"

var ErrInvalidMessage = errors.New("ingest: invalid message")

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink stores a batch of events. *complaints.Service satisfies it.
type Sink interface {
	Ingest(ctx context.Context, source string, events []*complaints.Event) (int, error)
}

// NewKafkaReader creates a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // commits are explicit, after the batch is stored
	})
}

// message is the wire form of a complaint event. Timestamps may use any
// layout complaints.ParseTimestamp accepts.
type message struct {
	ComplaintID  string      `json:"complaint_id"`
	FraudType    string      `json:"fraud_type"`
	Amount       json.Number `json:"amount"`
	AccountID    string      `json:"mule_account_id"`
	ATMID        string      `json:"withdrawal_atm_id"`
	Lat          float64     `json:"withdrawal_lat"`
	Long         float64     `json:"withdrawal_long"`
	LocationName string      `json:"location_name"`
	Timestamp    string      `json:"timestamp"`
}

// Decode parses and validates one message value.
func Decode(value []byte) (*complaints.Event, error) {
	var m message
	if err := json.Unmarshal(value, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	ts, err := complaints.ParseTimestamp(m.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	amount, err := complaints.ParseAmount(m.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	e := &complaints.Event{
		ComplaintID:  m.ComplaintID,
		FraudType:    m.FraudType,
		Amount:       amount,
		AccountID:    m.AccountID,
		ATMID:        m.ATMID,
		Lat:          m.Lat,
		Long:         m.Long,
		LocationName: m.LocationName,
		Timestamp:    ts,
		Status:       complaints.StatusOpen,
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return e, nil
}

// Consumer moves events from a Reader to a Sink.
//
// Offsets are committed only after the batch holding them is stored, so a
// crash replays at most one batch. Messages that cannot be decoded are
// logged, counted and committed so they do not block the partition.
type Consumer struct {
	reader        Reader
	sink          Sink
	batchSize     int
	flushInterval time.Duration
	storeAttempts int
	logger        *slog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithBatch sets the batch size and how long a partial batch may wait.
func WithBatch(size int, flushInterval time.Duration) Option {
	return func(c *Consumer) {
		c.batchSize = size
		c.flushInterval = flushInterval
	}
}

// NewConsumer creates a consumer.
func NewConsumer(reader Reader, sink Sink, logger *slog.Logger, opts ...Option) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		reader:        reader,
		sink:          sink,
		batchSize:     200,
		flushInterval: 2 * time.Second,
		storeAttempts: 5,
		logger:        logging.Component(logger, "ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize < 1 {
		c.batchSize = 1
	}
	return c
}

// Run consumes until ctx ends (returning nil) or the sink keeps failing.
// Stats are returned either way.
func (c *Consumer) Run(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		events []*complaints.Event
		msgs   []kafka.Message
	)

	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if len(events) > 0 {
			err := retry.Do(ctx, c.storeAttempts, 500*time.Millisecond, func() error {
				_, err := c.sink.Ingest(ctx, SourceKafka, events)
				if errors.Is(err, complaints.ErrInvalidEvent) {
					return retry.Permanent(err)
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("store batch of %d: %w", len(events), err)
			}
			stats.Stored += len(events)
		}
		if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("commit offsets: %w", err)
		}
		c.logger.Debug("batch committed", "events", len(events), "messages", len(msgs))
		events, msgs = events[:0], msgs[:0]
		return nil
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.flushInterval)
		m, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		switch {
		case ctx.Err() != nil:
			// shutting down: store what we have with a fresh deadline
			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			ctx = shutdownCtx
			ferr := flush()
			stop()
			return stats, ferr
		case errors.Is(err, context.DeadlineExceeded):
			if ferr := flush(); ferr != nil {
				return stats, ferr
			}
			continue
		case err != nil:
			return stats, fmt.Errorf("fetch message: %w", err)
		}

		stats.Received++
		msgs = append(msgs, m)
		e, derr := Decode(m.Value)
		if derr != nil {
			stats.Invalid++
			metrics.IngestedEventsTotal.WithLabelValues(SourceKafka, "invalid").Inc()
			c.logger.Warn("skipping invalid complaint message",
				"partition", m.Partition, "offset", m.Offset, "error", derr)
		} else {
			events = append(events, e)
		}

		if len(msgs) >= c.batchSize {
			if ferr := flush(); ferr != nil {
				return stats, ferr
			}
		}
	}
}

// Stats counts what a Run saw.
type Stats struct {
	Received int
	Stored   int
	Invalid  int
}

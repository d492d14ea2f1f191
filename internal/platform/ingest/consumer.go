// Package ingest consumes lab results published by upstream laboratory
// systems and records them through the tracking service.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/sicklecare/sicklecare/internal/domain/tracking"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader builds a consumer-group reader. Offsets are committed explicitly
// once a message has been handled.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// LabRecorder validates and stores lab results.
type LabRecorder interface {
	ValidateLabResult(l *tracking.LabResult) error
	CreateLabResult(ctx context.Context, l *tracking.LabResult) error
}

// Observer counts handled messages.
type Observer interface {
	ObserveIngest(outcome string)
}

// LabMessage is the wire format of a published lab result.
type LabMessage struct {
	SubjectID   string           `json:"subject_id"`
	AnalyteCode string           `json:"analyte_code"`
	AnalyteName string           `json:"analyte_name,omitempty"`
	Value       *decimal.Decimal `json:"value"`
	Unit        string           `json:"unit"`
	ObservedAt  time.Time        `json:"observed_at"`
	RefLow      *decimal.Decimal `json:"ref_low,omitempty"`
	RefHigh     *decimal.Decimal `json:"ref_high,omitempty"`
}

// errMalformed marks messages that can never be stored and must be skipped.
var errMalformed = errors.New("malformed lab message")

// Decode parses a message body into a lab result ready for validation. The
// message key is used as the subject when the body carries none.
func Decode(msg kafka.Message) (*tracking.LabResult, error) {
	var m LabMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if m.SubjectID == "" {
		m.SubjectID = strings.TrimSpace(string(msg.Key))
	}
	if m.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", errMalformed)
	}
	if m.Value == nil {
		return nil, fmt.Errorf("%w: value is required", errMalformed)
	}
	return &tracking.LabResult{
		SubjectID:   m.SubjectID,
		AnalyteCode: m.AnalyteCode,
		AnalyteName: m.AnalyteName,
		Value:       *m.Value,
		Unit:        m.Unit,
		ObservedAt:  m.ObservedAt.UTC(),
		RefLow:      m.RefLow,
		RefHigh:     m.RefHigh,
		Source:      tracking.SourceKafka,
	}, nil
}

type Consumer struct {
	reader   MessageReader
	labs     LabRecorder
	observer Observer
	logger   zerolog.Logger
}

func NewConsumer(reader MessageReader, labs LabRecorder, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		labs:   labs,
		logger: logger.With().Str("component", "lab-ingest").Logger(),
	}
}

func (c *Consumer) SetObserver(o Observer) {
	c.observer = o
}

// Run consumes until ctx is cancelled. Malformed or invalid messages are
// logged, counted and committed so they are not redelivered. A storage
// failure stops the consumer without committing, leaving the message for
// the next member of the group.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch lab message: %w", err)
		}

		if err := c.Handle(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Handle processes one message. It only returns errors worth retrying.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	log := c.logger.With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	lab, err := Decode(msg)
	if err == nil {
		err = c.labs.ValidateLabResult(lab)
	}
	if err != nil {
		log.Warn().Err(err).Msg("skipping lab message")
		c.observe("rejected")
		return nil
	}

	if err := c.labs.CreateLabResult(ctx, lab); err != nil {
		return fmt.Errorf("store lab result: %w", err)
	}
	log.Info().
		Str("subject", lab.SubjectID).
		Str("analyte", lab.AnalyteCode).
		Str("lab_id", lab.ID.String()).
		Msg("lab result ingested")
	c.observe("stored")
	return nil
}

func (c *Consumer) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveIngest(outcome)
	}
}

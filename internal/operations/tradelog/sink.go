// Package tradelog fans executed trades out to the configured sinks.
package tradelog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
)

// Sink is satisfied by *repositories.TradeLogRepository and *KafkaPublisher.
type Sink interface {
	Append(ctx context.Context, entry *models.TradeLog) error
}

type namedSink struct {
	name string
	sink Sink
}

// MultiSink appends to every sink in order. A failing sink does not stop
// the others; the failures are joined into the returned error.
type MultiSink struct {
	sinks []namedSink
	log   zerolog.Logger
}

func NewMultiSink(log zerolog.Logger) *MultiSink {
	return &MultiSink{log: log.With().Str("component", "tradelog").Logger()}
}

// Add registers a sink under name. Nil sinks are ignored.
func (m *MultiSink) Add(name string, s Sink) *MultiSink {
	if s != nil {
		m.sinks = append(m.sinks, namedSink{name: name, sink: s})
	}
	return m
}

func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Append(ctx context.Context, entry *models.TradeLog) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Append(ctx, entry); err != nil {
			m.log.Warn().Err(err).Str("sink", s.name).Str("symbol", entry.Symbol).Msg("trade log sink failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

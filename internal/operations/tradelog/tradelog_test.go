package tradelog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotTradeBot/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type recordingSink struct {
	got []*models.TradeLog
	err error
}

func (s *recordingSink) Append(_ context.Context, e *models.TradeLog) error {
	s.got = append(s.got, e)
	return s.err
}

func sellLog() *models.TradeLog {
	return &models.TradeLog{
		Symbol:    "BTCUSDT",
		Side:      models.SideSell,
		Direction: models.DirectionLong,
		Price:     101.8,
		Quantity:  2,
		Profit:    3.6,
		Strategy:  "bull_order_block",
		Score:     14,
		Reason:    "take_profit",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Append(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "trade-logs"}

	require.NoError(t, p.Append(context.Background(), sellLog()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "BTCUSDT", string(msg.Key))
	assert.Equal(t, "sell", string(msg.Headers[0].Value))

	var decoded models.TradeLog
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 3.6, decoded.Profit)
	assert.Equal(t, "take_profit", decoded.Reason)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(nil, "trade-logs")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	boom := errors.New("leader not available")
	p := &KafkaPublisher{writer: &fakeWriter{err: boom}, topic: "trade-logs"}
	assert.ErrorIs(t, p.Append(context.Background(), sellLog()), boom)
	assert.Error(t, p.Append(context.Background(), nil))
}

func TestMultiSink_FansOutPastFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("db locked")
	failing := &recordingSink{err: boom}
	ok := &recordingSink{}

	m := NewMultiSink(zerolog.Nop()).
		Add("db", failing).
		Add("kafka", ok).
		Add("missing", nil)
	assert.Equal(t, 2, m.Len())

	err := m.Append(context.Background(), sellLog())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)

	failing.err = nil
	assert.NoError(t, m.Append(context.Background(), sellLog()))
}

// Package stream publishes fill notifications to Kafka so downstream
// consumers (risk, analytics, market data) can follow executions
// without touching the engine.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/app/spot"
)

type Producer struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewProducer(brokers []string, topic string, logger *zap.SugaredLogger) *Producer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Warnw("fill_publish_failed", "count", len(messages), "err", err)
				}
			},
		},
		log: logger,
	}
}

// NotifyFill implements spot.FillNotifier. The writer is asynchronous:
// WriteMessages only enqueues, so the caller never waits on a broker
// round-trip. Publishing is best-effort — the fill has already
// committed, delivery failures surface through the completion callback.
func (p *Producer) NotifyFill(ev spot.FillEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnw("fill_marshal_failed", "err", err)
		return
	}

	err = p.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
	})
	if err != nil {
		p.log.Warnw("fill_enqueue_failed", "symbol", ev.Symbol, "err", err)
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

var _ spot.FillNotifier = (*Producer)(nil)

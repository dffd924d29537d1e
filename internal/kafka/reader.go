package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"booking-engine/internal/event"
	"booking-engine/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

var (
	readErrorCounter      = metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="payment_event"}`)
	unmarshalErrorCounter = metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="payment_event"}`)
	processErrorCounter   = metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="payment_event"}`)
	successCounter        = metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="payment_event"}`)
)

func NewReader(kafkaURL, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(kafkaURL, ","),
		GroupID: groupID,
		Topic:   topic,
	})
}

// ReadPaymentEvents consumes signed provider events from the queue and
// feeds them through the same reconciler as the webhook. Delivery is
// at-least-once; the reconciler's dedup makes redeliveries harmless.
func ReadPaymentEvents(ctx context.Context, reader *kafka.Reader, reconciler *event.Reconciler, logger *slog.Logger) {
	go func() {
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.InfoContext(ctx, "Context done, stopping payment event reader")
					return
				}
				logger.ErrorContext(ctx, fmt.Sprintf("Error reading message: %v", err))
				readErrorCounter.Inc()
				continue
			}

			var envelope message.SignedEnvelope
			if err := json.Unmarshal(m.Value, &envelope); err != nil {
				logger.ErrorContext(ctx, fmt.Sprintf("Error unmarshalling envelope: %v", err))
				unmarshalErrorCounter.Inc()
				continue
			}

			outcome := reconciler.Process(ctx, envelope.Payload, envelope.Signature)
			if outcome == event.OutcomeFailed {
				logger.ErrorContext(ctx, "Payment event processing failed, awaiting redelivery",
					"outcome", outcome.String())
				processErrorCounter.Inc()
				continue
			}
			successCounter.Inc()
		}
	}()
}

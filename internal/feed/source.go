package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Source is an upstream producer connection. Run decodes events from the
// backing transport and hands them to emit until the context is canceled.
type Source interface {
	Run(ctx context.Context, emit func(Event)) error
}

// RedisSource consumes events from a Redis pub/sub channel. Use it for
// low-latency in-datacenter producers.
type RedisSource struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisSource(addr, channel string, log *zap.Logger) *RedisSource {
	return &RedisSource{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		log:     log,
	}
}

func (s *RedisSource) Run(ctx context.Context, emit func(Event)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription on %q closed", s.channel)
			}
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				s.log.Warn("dropping malformed feed message", zap.Error(err))
				continue
			}
			emit(ev)
		}
	}
}

// KafkaSource consumes events from a Kafka topic. Use it when the producer
// stream needs durable buffering between restarts.
type KafkaSource struct {
	reader *kafka.Reader
	log    *zap.Logger
}

func NewKafkaSource(brokers []string, topic, groupID string, log *zap.Logger) *KafkaSource {
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		log: log,
	}
}

func (s *KafkaSource) Run(ctx context.Context, emit func(Event)) error {
	defer s.reader.Close()
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}
		ev, err := decodeEvent(msg.Value)
		if err != nil {
			s.log.Warn("dropping malformed feed message", zap.Error(err))
			continue
		}
		emit(ev)
	}
}

func decodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" || ev.Symbol == "" {
		return Event{}, fmt.Errorf("event missing type or symbol")
	}
	return ev, nil
}

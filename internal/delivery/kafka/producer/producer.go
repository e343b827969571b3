package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	kafka "github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

type Producer interface {
	PublishVoiceState(ctx context.Context, event kafka.VoiceStateEvent) error
	PublishVoiceLeft(ctx context.Context, event kafka.VoiceLeftEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) PublishVoiceState(ctx context.Context, event kafka.VoiceStateEvent) error {
	event.Timestamp = time.Now()
	key := event.State.RoomID()
	if key == "" {
		key = event.PrevRoomID
	}
	return p.send(ctx, "PublishVoiceState", kafka.TopicVoiceStateUpdated, key, event)
}

func (p *implProducer) PublishVoiceLeft(ctx context.Context, event kafka.VoiceLeftEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishVoiceLeft", kafka.TopicVoiceStateLeft, event.RoomID, event)
}

func (p *implProducer) send(ctx context.Context, op, topic, key string, event any) error {
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.%s: %v", op, err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key), // Partition by room for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	if _, _, err := p.prod.SendMessage(msg); err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.%s: %v", op, err)
		return err
	}
	return nil
}

func (p *implProducer) Close() error {
	return p.prod.Close()
}

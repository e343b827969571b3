package consumer

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

type Consumer struct {
	consGr   sarama.ConsumerGroup
	voiceSvc service.VoiceService
	listSvc  service.MemberListService
	l        logger.Logger
	wg       sync.WaitGroup
}

func NewConsumer(
	consGr sarama.ConsumerGroup,
	voiceSvc service.VoiceService,
	listSvc service.MemberListService,
	l logger.Logger,
) *Consumer {
	return &Consumer{
		consGr:   consGr,
		voiceSvc: voiceSvc,
		listSvc:  listSvc,
		l:        l,
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case kafka.TopicVoiceStateUpdated:
		return c.HandleVoiceStateUpdated(ctx, msg)
	case kafka.TopicVoiceStateLeft:
		return c.HandleVoiceStateLeft(ctx, msg)
	case kafka.TopicVoiceModeration:
		return c.HandleVoiceModeration(ctx, msg)
	case kafka.TopicSpacePermissionsUpdated:
		return c.HandleSpacePermissionsUpdated(ctx, msg)
	case kafka.TopicSpaceMemberUpdated:
		return c.HandleSpaceMemberUpdated(ctx, msg)
	default:
		c.l.Warnf(ctx, "delivery.kafka.consumer.processMessage: unknown topic %s", msg.Topic)
		return nil
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	topics := []string{
		kafka.TopicVoiceStateUpdated,
		kafka.TopicVoiceStateLeft,
		kafka.TopicVoiceModeration,
		kafka.TopicSpacePermissionsUpdated,
		kafka.TopicSpaceMemberUpdated,
	}
	c.wg.Go(func() {
		for {
			if err := c.consGr.Consume(ctx, topics, c); err != nil {
				c.l.Errorf(ctx, "delivery.kafka.consumer.Start: %v", err)
			}

			if ctx.Err() != nil {
				c.l.Infof(ctx, "delivery.kafka.consumer.Start: %v", ctx.Err())
				return
			}
		}
	})

	c.wg.Go(func() {
		for err := range c.consGr.Errors() {
			c.l.Errorf(ctx, "delivery.kafka.consumer.Start: %v", err)
		}
	})

	c.l.Infof(ctx, "Consumer is consuming topics: %v", topics)
	return nil
}

func (c *Consumer) Close() error {
	if err := c.consGr.Close(); err != nil {
		return err
	}

	c.wg.Wait()
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session started")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session ended")
	return nil
}

func (c *Consumer) ConsumeClaim(ss sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.processMessage(ss.Context(), message); err != nil {
				c.l.Errorf(ss.Context(), "delivery.kafka.consumer.ConsumeClaim: topic=%s offset=%d: %v",
					message.Topic, message.Offset, err)
			}

			// Events are fan-out hints; a bad one is skipped rather than retried.
			ss.MarkMessage(message, "")

		case <-ss.Context().Done():
			return nil
		}
	}
}

package consumer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
)

func (c *Consumer) HandleVoiceStateUpdated(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.VoiceStateEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleVoiceStateUpdated: %v", err)
		return err
	}

	c.voiceSvc.DeliverStateEvent(ctx, e)
	return nil
}

func (c *Consumer) HandleVoiceStateLeft(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.VoiceLeftEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleVoiceStateLeft: %v", err)
		return err
	}

	c.voiceSvc.DeliverLeftEvent(ctx, e)
	return nil
}

func (c *Consumer) HandleVoiceModeration(ctx context.Context, message *sarama.ConsumerMessage) error {
	c.l.Info(ctx, "HandleVoiceModeration consumed")

	var e kafka.VoiceModerationEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleVoiceModeration: %v", err)
		return err
	}

	if err := c.voiceSvc.ApplyModeration(ctx, e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleVoiceModeration: %v", err)
		return err
	}

	return nil
}

func (c *Consumer) HandleSpacePermissionsUpdated(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.SpacePermissionsUpdatedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleSpacePermissionsUpdated: %v", err)
		return err
	}

	c.listSvc.ResyncSpace(e.SpaceID)
	return nil
}

func (c *Consumer) HandleSpaceMemberUpdated(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.SpaceMemberUpdatedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleSpaceMemberUpdated: %v", err)
		return err
	}

	c.listSvc.ResyncSpace(e.SpaceID)
	return nil
}

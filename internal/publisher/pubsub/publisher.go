// Package pubsub publishes run events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/publisher"
)

// Publisher sends run events to one Pub/Sub topic.
type Publisher struct {
	client *gcppubsub.Client
	topic  *gcppubsub.Topic
	logger *zap.Logger
}

// New connects to Pub/Sub and binds the configured topic.
func New(ctx context.Context, projectID, topicName string, logger *zap.Logger) (*Publisher, error) {
	if projectID == "" || topicName == "" {
		return nil, fmt.Errorf("events.project_id and events.topic are required")
	}
	client, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(topicName),
		logger: logger,
	}, nil
}

// PublishRun marshals the event as JSON and waits for the server ack.
func (p *Publisher) PublishRun(ctx context.Context, event publisher.RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	result := p.topic.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": event.RunID,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	p.logger.Info("published run event",
		zap.String("run_id", event.RunID),
		zap.String("message_id", id),
	)
	return nil
}

// Close flushes the topic and releases the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

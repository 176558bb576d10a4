// Package sqs receives dispatch triggers from a queue fed by a scheduler
// (an EventBridge rule or anything else that can send a message).
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// ErrMalformedMessage is set on a delivery whose body is not a JSON object.
var ErrMalformedMessage = errors.New("malformed trigger message")

type Config struct {
	Region   string
	QueueURL string
	// Endpoint overrides the AWS endpoint, for LocalStack.
	Endpoint string
	// WaitTime is the long-poll duration, at most 20s.
	WaitTime time.Duration
	// VisibilityTimeout must outlast a dispatch cycle or the trigger is
	// redelivered while still running.
	VisibilityTimeout time.Duration
}

// TriggerMessage is the body of a trigger. Every field is optional; an
// EventBridge scheduled event decodes into Source and Time.
type TriggerMessage struct {
	Source      string    `json:"source,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Time        time.Time `json:"time,omitempty"`
}

// Delivery is one received trigger.
type Delivery struct {
	MessageID     string
	ReceiptHandle string
	Trigger       TriggerMessage
	// Err is ErrMalformedMessage when the body could not be decoded.
	Err error
}

// API is the subset of the SQS client the consumer calls.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Consumer struct {
	client   API
	queueURL string
	wait     int32
	visible  int32
	logger   *zap.Logger
}

// NewConsumer builds a consumer from the default AWS credential chain.
func NewConsumer(ctx context.Context, cfg Config, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("sqs trigger consumer initialized", zap.String("queue_url", cfg.QueueURL))

	return NewConsumerWithAPI(client, cfg, logger), nil
}

func NewConsumerWithAPI(client API, cfg Config, logger *zap.Logger) *Consumer {
	wait := cfg.WaitTime
	if wait <= 0 || wait > 20*time.Second {
		wait = 20 * time.Second
	}
	visible := cfg.VisibilityTimeout
	if visible <= 0 {
		visible = 5 * time.Minute
	}

	return &Consumer{
		client:   client,
		queueURL: cfg.QueueURL,
		wait:     int32(wait / time.Second),
		visible:  int32(visible / time.Second),
		logger:   logger,
	}
}

// Receive long-polls for one trigger. It returns nil, nil when the poll
// times out empty.
func (c *Consumer) Receive(ctx context.Context) (*Delivery, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     c.wait,
		VisibilityTimeout:   c.visible,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive failed: %w", err)
	}

	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	d := &Delivery{
		MessageID:     aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
	}

	if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &d.Trigger); err != nil {
		d.Err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return d, nil
}

// Delete acknowledges a trigger so it is not redelivered.
func (c *Consumer) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}
	return nil
}

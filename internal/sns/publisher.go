// Package sns reports dispatch cycle outcomes to an SNS topic for ops
// alerting.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const EventDispatchCycle = "dispatch_cycle"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Report is the published message body. Summary is the cycle summary as
// returned by the dispatcher; it is nil when the cycle failed before
// sending anything.
type Report struct {
	EventType  string    `json:"event_type"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Summary    any       `json:"summary,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// API is the subset of the SNS client the reporter calls.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Reporter struct {
	client   API
	topicARN string
}

// NewReporter creates a reporter for the given topic. An empty endpoint
// uses the regular AWS endpoint resolution.
func NewReporter(ctx context.Context, topicARN, endpoint, region string) (*Reporter, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewReporterWithAPI(client, topicARN), nil
}

func NewReporterWithAPI(client API, topicARN string) *Reporter {
	return &Reporter{client: client, topicARN: topicARN}
}

// PublishSummary publishes r and returns the SNS message id. Status and
// event type are copied into message attributes so subscribers can filter
// on failures.
func (p *Reporter) PublishSummary(ctx context.Context, r Report) (string, error) {
	if r.EventType == "" {
		r.EventType = EventDispatchCycle
	}
	if r.ReportedAt.IsZero() {
		r.ReportedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(r.EventType),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(r.Status),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to publish to SNS: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}

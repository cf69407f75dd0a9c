// Package queue provides the SQS transport for the delivery pipeline: a
// long-polling consumer for the work queue and a publisher for retry
// republish and dead-letter routing.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"pushgate/internal/config"
	"pushgate/internal/types"
)

// maxDelaySeconds is the SQS DelaySeconds ceiling. Longer waits are slept
// in-process by the retry router before publishing.
const maxDelaySeconds = 900

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends NotificationMessages to the work and dead-letter queues.
// It is a pure transport: attempt counting belongs to the retry router, which
// increments on a copy before republishing.
type Publisher struct {
	client        SQSSender
	workQueueURL  string
	deadLetterURL string
	logger        types.Logger
}

// NewPublisher creates a Publisher targeting the queues named in cfg.
func NewPublisher(client SQSSender, cfg config.QueueConfig, logger types.Logger) *Publisher {
	return &Publisher{
		client:        client,
		workQueueURL:  cfg.WorkQueueURL,
		deadLetterURL: cfg.DeadLetterURL,
		logger:        logger,
	}
}

// PublishWork serializes msg and sends it to the work queue with the given
// delay. Delay is clamped to the SQS limit of [0, 900] seconds.
func (p *Publisher) PublishWork(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal work message", err)
	}

	delaySec := clampDelaySeconds(delay)
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.workQueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeDependencyQueue, "failed to publish work message", err)
	}

	p.logger.Info("work message published",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"attempts", msg.Attempts,
		"delay_seconds", delaySec,
	)
	return nil
}

// PublishDeadLetter serializes msg and sends it to the dead-letter queue,
// payload unchanged. The reason travels as a message attribute so operators
// can triage without parsing bodies.
func (p *Publisher) PublishDeadLetter(ctx context.Context, msg types.NotificationMessage, reason string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal dead-letter message", err)
	}
	if err := p.sendDeadLetter(ctx, string(body), reason); err != nil {
		return err
	}

	p.logger.Warn("message dead-lettered",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"attempts", msg.Attempts,
		"reason", reason,
	)
	return nil
}

// PublishDeadLetterRaw forwards an unparseable payload to the dead-letter
// queue verbatim. Used when validation fails before a typed message exists.
func (p *Publisher) PublishDeadLetterRaw(ctx context.Context, body string, reason string) error {
	if err := p.sendDeadLetter(ctx, body, reason); err != nil {
		return err
	}

	p.logger.Warn("raw payload dead-lettered", "reason", reason)
	return nil
}

func (p *Publisher) sendDeadLetter(ctx context.Context, body string, reason string) error {
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.deadLetterURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeDependencyQueue, "failed to publish dead-letter message", err)
	}
	return nil
}

// clampDelaySeconds converts a duration to SQS DelaySeconds, clamped to
// [0, 900].
func clampDelaySeconds(delay time.Duration) int32 {
	sec := int32(delay.Seconds())
	if sec > maxDelaySeconds {
		return maxDelaySeconds
	}
	if sec < 0 {
		return 0
	}
	return sec
}

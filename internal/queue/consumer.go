package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"pushgate/internal/config"
	"pushgate/internal/types"
)

// maxWaitTimeSeconds is the SQS long-poll ceiling.
const maxWaitTimeSeconds = 20

// SQSReceiver abstracts the SQS operations the consumer needs.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Message is one received work item. SentAt is zero and ReceiveCount zero
// when SQS omits the corresponding attribute.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	SentAt        time.Time
	ReceiveCount  int
}

// Consumer long-polls the work queue, yielding messages for the orchestrator.
// Acknowledgement is explicit and separate from receipt: a message that is
// never acked reappears after the visibility timeout.
type Consumer struct {
	client            SQSReceiver
	queueURL          string
	waitTime          time.Duration
	visibilityTimeout time.Duration
	maxMessages       int32
	logger            types.Logger
}

// NewConsumer creates a Consumer for the work queue named in cfg.
func NewConsumer(client SQSReceiver, cfg config.QueueConfig, logger types.Logger) *Consumer {
	maxMessages := int32(cfg.MaxMessages)
	if maxMessages < 1 {
		maxMessages = 1
	}
	return &Consumer{
		client:            client,
		queueURL:          cfg.WorkQueueURL,
		waitTime:          cfg.WaitTime,
		visibilityTimeout: cfg.VisibilityTimeout,
		maxMessages:       maxMessages,
		logger:            logger,
	}
}

// Receive performs one long-poll round. An empty slice with a nil error means
// the poll timed out without messages; callers loop.
func (c *Consumer) Receive(ctx context.Context) ([]Message, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.maxMessages,
		WaitTimeSeconds:     clampWaitSeconds(c.waitTime),
		VisibilityTimeout:   int32(c.visibilityTimeout.Seconds()),
		MessageSystemAttributeNames: []sqsTypes.MessageSystemAttributeName{
			sqsTypes.MessageSystemAttributeNameSentTimestamp,
			sqsTypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDependencyQueue, "failed to receive messages", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		messages = append(messages, fromSQSMessage(raw))
	}

	if len(messages) > 0 {
		c.logger.Debug("messages received", "count", len(messages))
	}
	return messages, nil
}

// Ack deletes the message from the queue. Called exactly once per message by
// the orchestrator, after the branch's side effect has been issued.
func (c *Consumer) Ack(ctx context.Context, msg Message) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeDependencyQueue, "failed to ack message", err)
	}
	return nil
}

// fromSQSMessage maps the SDK message to the consumer envelope.
func fromSQSMessage(raw sqsTypes.Message) Message {
	msg := Message{
		MessageID:     aws.ToString(raw.MessageId),
		ReceiptHandle: aws.ToString(raw.ReceiptHandle),
		Body:          aws.ToString(raw.Body),
	}
	if ts, ok := raw.Attributes[string(sqsTypes.MessageSystemAttributeNameSentTimestamp)]; ok {
		if at, err := parseMillisTimestamp(ts); err == nil {
			msg.SentAt = at
		}
	}
	if rc, ok := raw.Attributes[string(sqsTypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(rc); err == nil {
			msg.ReceiveCount = n
		}
	}
	return msg
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
// Used for the SQS SentTimestamp attribute to calculate queue lag.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// clampWaitSeconds converts the long-poll duration to SQS WaitTimeSeconds,
// clamped to [0, 20].
func clampWaitSeconds(wait time.Duration) int32 {
	sec := int32(wait.Seconds())
	if sec > maxWaitTimeSeconds {
		return maxWaitTimeSeconds
	}
	if sec < 0 {
		return 0
	}
	return sec
}

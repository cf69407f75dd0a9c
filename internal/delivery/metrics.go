package delivery

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pushgate/internal/types"
)

// Result values for the Result dimension on the NotificationDelivery metric.
type Result string

const (
	ResultSuccess    Result = "success"
	ResultFailure    Result = "failure"
	ResultRetry      Result = "retry"
	ResultDeadLetter Result = "dead_letter"
	ResultDuplicate  Result = "duplicate"
)

// Metrics records pipeline outcomes. Implementations must never fail the
// caller: metric emission is fire-and-forget.
type Metrics interface {
	// RecordDelivery counts one delivery outcome for a platform.
	RecordDelivery(ctx context.Context, platform types.Platform, result Result)

	// RecordLatency records the wall time of one delivery attempt.
	RecordLatency(ctx context.Context, platform types.Platform, elapsed time.Duration)

	// RecordQueueLag records how long a message sat in the queue before a
	// worker received it.
	RecordQueueLag(ctx context.Context, lag time.Duration)

	// RecordBreakerState counts a circuit breaker transition into a state.
	RecordBreakerState(ctx context.Context, name string, state types.BreakerState)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses the *cloudwatch.Client from aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits pipeline metrics to CloudWatch. Emission failures
// are logged and swallowed so a metrics outage never affects delivery.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a metrics recorder publishing into the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, platform types.Platform, result Result) {
	m.putMetric(ctx, types.MetricNotificationDelivery, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		{Name: aws.String(types.DimPlatform), Value: aws.String(platformDim(platform))},
		{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
	})
}

func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, platform types.Platform, elapsed time.Duration) {
	m.putMetric(ctx, types.MetricDeliveryLatency, float64(elapsed.Milliseconds()), cwtypes.StandardUnitMilliseconds, []cwtypes.Dimension{
		{Name: aws.String(types.DimPlatform), Value: aws.String(platformDim(platform))},
	})
}

func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.putMetric(ctx, types.MetricQueueLag, float64(lag.Milliseconds()), cwtypes.StandardUnitMilliseconds, nil)
}

func (m *CloudWatchMetrics) RecordBreakerState(ctx context.Context, name string, state types.BreakerState) {
	m.putMetric(ctx, types.MetricBreakerTransition, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		{Name: aws.String(types.DimBreaker), Value: aws.String(name)},
		{Name: aws.String(types.DimState), Value: aws.String(string(state))},
	})
}

// putMetric sends a single datum. Errors are logged, never returned.
func (m *CloudWatchMetrics) putMetric(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Dimensions: dims,
				Timestamp:  aws.Time(time.Now().UTC()),
			},
		},
	})
	if err != nil {
		m.logger.Warn("failed to put metric", "metric", name, "error", err)
	}
}

// platformDim maps a platform to its dimension value. CloudWatch rejects
// empty dimension values, so messages dead-lettered before parsing report
// "unknown".
func platformDim(p types.Platform) string {
	if p == "" {
		return "unknown"
	}
	return string(p)
}

// NopMetrics discards all metrics. Used in local mode and in tests that do
// not assert on emission.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.Platform, Result) {}

func (NopMetrics) RecordLatency(context.Context, types.Platform, time.Duration) {}

func (NopMetrics) RecordQueueLag(context.Context, time.Duration) {}

func (NopMetrics) RecordBreakerState(context.Context, string, types.BreakerState) {}

var (
	_ Metrics = (*CloudWatchMetrics)(nil)
	_ Metrics = NopMetrics{}
)

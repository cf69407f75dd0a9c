package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricNotificationDelivery = "NotificationDelivery"
	MetricDeliveryLatency      = "DeliveryLatency"
	MetricQueueLag             = "NotificationQueueLag"
	MetricBreakerTransition    = "CircuitBreakerTransition"

	// Dimension Keys
	DimPlatform = "Platform"
	DimResult   = "Result"
	DimBreaker  = "Breaker"
	DimState    = "State"
)

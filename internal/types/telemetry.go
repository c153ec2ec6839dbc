package types

// Telemetry metric names for CloudWatch.
const (
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricDraftMutation      = "DraftMutation"
	MetricValidationRejected = "ValidationRejected"
	MetricPlanPublished      = "PlanPublished"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	DimEndpoint  = "Endpoint"
	DimMethod    = "Method"
	DimStatus    = "Status"
	DimOperation = "Operation"
	DimErrorCode = "ErrorCode"
	DimProvider  = "Provider"

	MetricNamespace = "ContractDesk"
)

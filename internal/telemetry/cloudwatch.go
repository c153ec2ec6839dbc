// Package telemetry publishes service metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"contractdesk/internal/types"
)

// maxDatumsPerCall stays under the PutMetricData limit of 1000 datums.
const maxDatumsPerCall = 500

// CloudWatchClient abstracts PutMetricData for tests.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics buffers datums in memory and ships them on Flush. The
// API server flushes on a ticker via Run; the Lambda worker flushes at the
// end of every invocation.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// NewCloudWatchMetrics creates a collector for namespace. An empty
// namespace falls back to types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordRequest records one API request: a count and a latency datum, both
// keyed by method, route pattern and status.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, status),
	}
	m.add(
		m.datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, dims),
		m.datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims),
	)
}

// RecordMutation counts an accepted draft edit.
func (m *CloudWatchMetrics) RecordMutation(_ context.Context, operation string) {
	m.add(m.datum(types.MetricDraftMutation, 1, cwtypes.StandardUnitCount,
		[]cwtypes.Dimension{dim(types.DimOperation, operation)}))
}

// RecordRejection counts a draft edit refused with code.
func (m *CloudWatchMetrics) RecordRejection(_ context.Context, operation string, code types.ErrorCode) {
	m.add(m.datum(types.MetricValidationRejected, 1, cwtypes.StandardUnitCount,
		[]cwtypes.Dimension{dim(types.DimOperation, operation), dim(types.DimErrorCode, string(code))}))
}

// RecordPlanPublished counts a plan that reached billing.
func (m *CloudWatchMetrics) RecordPlanPublished(_ context.Context, prices int) {
	m.add(m.datum(types.MetricPlanPublished, float64(prices), cwtypes.StandardUnitCount, nil))
}

// RecordExternalFailure counts a failed call to provider.
func (m *CloudWatchMetrics) RecordExternalFailure(_ context.Context, provider string) {
	m.add(m.datum(types.MetricExternalAPIFailure, 1, cwtypes.StandardUnitCount,
		[]cwtypes.Dimension{dim(types.DimProvider, provider)}))
}

// Flush sends every buffered datum. Datums of a failed call are dropped and
// logged; metrics never block or fail the caller's work.
func (m *CloudWatchMetrics) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	for start := 0; start < len(batch); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(batch))
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: batch[start:end],
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to publish metrics",
				"error", err,
				"dropped", end-start,
			)
		}
	}
}

// Run flushes every interval until ctx is done, then flushes once more
// with a short grace period.
func (m *CloudWatchMetrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			m.Flush(final)
			cancel()
			return
		}
	}
}

// Pending reports the number of buffered datums.
func (m *CloudWatchMetrics) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *CloudWatchMetrics) add(datums ...cwtypes.MetricDatum) {
	m.mu.Lock()
	m.pending = append(m.pending, datums...)
	m.mu.Unlock()
}

func (m *CloudWatchMetrics) datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(m.now()),
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

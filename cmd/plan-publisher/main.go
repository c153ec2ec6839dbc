// Package main is the entrypoint for the plan publisher Lambda.
//
// The worker consumes the plan-events queue. For every plan.published event
// it loads the published draft, creates the matching Stripe product and
// prices, and records the product ID on the draft. Other event types are
// acknowledged and ignored.
//
// Failures that a retry can fix (database, Stripe availability) are
// returned as batch item failures so SQS redelivers only those messages.
// Malformed events and drafts that no longer exist are acknowledged.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"contractdesk/internal/config"
	"contractdesk/internal/db"
	"contractdesk/internal/external"
	"contractdesk/internal/queue"
	"contractdesk/internal/telemetry"
	"contractdesk/internal/types"
)

// DraftStore is the slice of db.DraftRepository the worker needs.
type DraftStore interface {
	Get(ctx context.Context, orgID, id string) (*types.PlanDraft, error)
	RecordSync(ctx context.Context, orgID, id, productID string, at time.Time) error
}

// PriceSyncer publishes a draft to the billing provider.
type PriceSyncer interface {
	SyncPlan(ctx context.Context, draft *types.PlanDraft) (*external.SyncResult, error)
}

// WorkerMetrics records sync outcomes.
type WorkerMetrics interface {
	RecordPlanPublished(ctx context.Context, prices int)
	RecordExternalFailure(ctx context.Context, provider string)
	Flush(ctx context.Context)
}

// Handler holds the worker dependencies.
type Handler struct {
	drafts  DraftStore
	syncer  PriceSyncer
	metrics WorkerMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// Handle processes one SQS batch and reports failed messages individually.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	defer h.metrics.Flush(ctx)

	var resp events.SQSEventResponse
	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "plan event failed",
				"message_id", record.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp, nil
}

// processMessage returns an error only when the message should be retried.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	event, err := queue.DecodePlanEvent(record.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "dropping malformed plan event",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	logger := h.logger.With(
		"event_id", event.ID,
		"event_type", string(event.Type),
		"draft_id", event.DraftID,
		"org_id", event.OrganizationID,
	)

	if event.Type != types.PlanEventPublished {
		logger.DebugContext(ctx, "ignoring plan event")
		return nil
	}

	draft, err := h.drafts.Get(ctx, event.OrganizationID, event.DraftID)
	switch {
	case types.HasCode(err, types.ErrCodeNotFoundDraft):
		logger.WarnContext(ctx, "published draft no longer exists")
		return nil
	case err != nil:
		return fmt.Errorf("loading draft: %w", err)
	}
	if draft.Status != types.DraftStatusPublished {
		logger.WarnContext(ctx, "draft is not published; skipping sync", "status", string(draft.Status))
		return nil
	}

	res, err := h.syncer.SyncPlan(ctx, draft)
	if err != nil {
		h.metrics.RecordExternalFailure(ctx, "stripe")
		if permanent(err) {
			logger.ErrorContext(ctx, "plan cannot be synced", "error", err)
			return nil
		}
		return fmt.Errorf("syncing plan: %w", err)
	}

	if err := h.drafts.RecordSync(ctx, draft.OrganizationID, draft.ID, res.ProductID, h.now()); err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundDraft) {
			logger.WarnContext(ctx, "draft deleted during sync", "product_id", res.ProductID)
			return nil
		}
		return fmt.Errorf("recording sync: %w", err)
	}

	h.metrics.RecordPlanPublished(ctx, len(res.PriceIDs))
	logger.InfoContext(ctx, "plan synced",
		"product_id", res.ProductID,
		"prices", len(res.PriceIDs),
	)
	return nil
}

// permanent reports whether a sync error will fail the same way on retry:
// rejected input, as opposed to an unavailable provider.
func permanent(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamUnavailable, types.ErrCodeUpstreamRateLimited, types.ErrCodeInternalUnexpected:
		return false
	case types.ErrCodeUpstreamStripe:
		// Stripe answered with a 4xx; the request itself is wrong.
		_, answered := appErr.Details["stripe_type"]
		return answered
	default:
		return true
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("plan publisher initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var syncer PriceSyncer
	if key := cfg.Billing.StripeSecretKey.Unmask(); key != "" {
		syncer = external.NewStripePriceSync(&http.Client{Timeout: 20 * time.Second}, external.StripeConfig{
			SecretKey: key,
			BaseURL:   cfg.Billing.StripeBaseURL,
			Logger:    logger,
		})
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; using stub price sync")
		syncer = external.NewStubPriceSync(logger)
	}

	handler := &Handler{
		drafts:  db.NewDraftRepository(pool),
		syncer:  syncer,
		metrics: telemetry.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger),
		logger:  logger,
		now:     time.Now,
	}

	lambda.Start(handler.Handle)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

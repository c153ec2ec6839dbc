package external

import (
	"context"
	"fmt"
	"log/slog"

	"contractdesk/internal/types"
)

// StubPriceSync stands in for Stripe when no secret key is configured. It
// logs the plan it would have synced and returns predictable IDs.
type StubPriceSync struct {
	logger *slog.Logger
}

func NewStubPriceSync(logger *slog.Logger) *StubPriceSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubPriceSync{logger: logger}
}

func (s *StubPriceSync) SyncPlan(ctx context.Context, draft *types.PlanDraft) (*SyncResult, error) {
	specs := priceSpecs(draft)
	res := &SyncResult{ProductID: fmt.Sprintf("prod_stub_%s", draft.ID)}
	for _, spec := range specs {
		res.PriceIDs = append(res.PriceIDs, fmt.Sprintf("price_stub_%s_%s", draft.ID, spec.key))
	}

	s.logger.InfoContext(ctx, "stub: SyncPlan called",
		"draft_id", draft.ID,
		"org_id", draft.OrganizationID,
		"prices", len(res.PriceIDs),
	)
	return res, nil
}

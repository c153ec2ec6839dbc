package plans

import (
	"context"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// WriteOptions controls the side effects of writing a field back into the
// draft form.
type WriteOptions struct {
	// ShouldDirty marks the draft as having unpublished changes.
	ShouldDirty bool
	// ShouldValidate re-runs the publish checks and reports their issues.
	ShouldValidate bool
}

// FormWriter persists the listed fields of a draft. Implementations must
// reject the write with conflict_concurrent_modification when the stored
// version differs from draft.Version, and bump the version on success.
type FormWriter interface {
	WriteFields(ctx context.Context, draft *types.PlanDraft, fields []types.FormField) error
}

// FormBridge is the single path through which pricing mutations reach the
// stored draft.
type FormBridge struct {
	writer FormWriter
	clock  types.Clock
}

// NewFormBridge wraps writer. A nil clock uses the system clock.
func NewFormBridge(writer FormWriter, clock types.Clock) *FormBridge {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &FormBridge{writer: writer, clock: clock}
}

// Write stores fields of draft and returns the validation issues when
// opts.ShouldValidate is set. On success the draft's Version and UpdatedAt
// reflect the stored row.
func (b *FormBridge) Write(ctx context.Context, draft *types.PlanDraft, fields []types.FormField, opts WriteOptions) ([]pricing.Issue, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	if opts.ShouldDirty {
		draft.Dirty = true
	}
	draft.UpdatedAt = b.clock.Now()

	if err := b.writer.WriteFields(ctx, draft, fields); err != nil {
		return nil, err
	}
	draft.Version++

	if !opts.ShouldValidate {
		return nil, nil
	}
	return pricing.CheckComplete(draft), nil
}

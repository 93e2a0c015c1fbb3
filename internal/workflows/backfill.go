package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/usecases"
)

const (
	// BackfillWorkflowName is the registered workflow type.
	BackfillWorkflowName = "GeocodeBackfillWorkflow"

	defaultPageSize = 100
	// pagesPerRun caps history growth before the workflow continues as new.
	pagesPerRun = 200
)

// BackfillInput is the input for the geocode backfill workflow. Cursor and
// Progress carry state across continue-as-new.
type BackfillInput struct {
	Kinds    []domain.EntityKind
	PageSize int
	Cursor   string
	Progress BackfillResult
}

// BackfillResult totals a backfill run.
type BackfillResult struct {
	Pages    int
	Scanned  int
	Resolved int
	Skipped  int
}

func (r *BackfillResult) add(p usecases.BackfillPage) {
	r.Pages++
	r.Scanned += p.Scanned
	r.Resolved += p.Resolved
	r.Skipped += p.Skipped
}

// GeocodeBackfillWorkflow pages through every kind in order, resolving and
// persisting coordinates for entities that only carry a textual location.
func GeocodeBackfillWorkflow(ctx workflow.Context, input BackfillInput) (BackfillResult, error) {
	logger := workflow.GetLogger(ctx)
	if len(input.Kinds) == 0 {
		input.Kinds = []domain.EntityKind{domain.KindTalent, domain.KindBusiness, domain.KindJob}
	}
	if input.PageSize <= 0 {
		input.PageSize = defaultPageSize
	}
	logger.Info("Starting geocode backfill", "kinds", len(input.Kinds), "pageSize", input.PageSize)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeMissingCredentials},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	result := input.Progress
	pages := 0
	for len(input.Kinds) > 0 {
		kind := input.Kinds[0]

		var page usecases.BackfillPage
		err := workflow.ExecuteActivity(ctx, "RunBackfillPage", kind, input.Cursor, input.PageSize).Get(ctx, &page)
		if err != nil {
			return result, err
		}
		result.add(page)
		pages++

		if page.Done {
			logger.Info("Backfill kind complete", "kind", string(kind))
			input.Kinds = input.Kinds[1:]
			input.Cursor = ""
		} else {
			input.Cursor = page.AfterID
		}

		if pages >= pagesPerRun && len(input.Kinds) > 0 {
			input.Progress = result
			return result, workflow.NewContinueAsNewError(ctx, GeocodeBackfillWorkflow, input)
		}
	}

	logger.Info("Geocode backfill finished", "resolved", result.Resolved, "skipped", result.Skipped)
	return result, nil
}

package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
)

func TestGeocodeBackfillWorkflow_PagesEachKind(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&BackfillActivities{})

	env.OnActivity("RunBackfillPage", mock.Anything, domain.KindTalent, "", 2).
		Return(usecases.BackfillPage{Kind: domain.KindTalent, AfterID: "t2", Scanned: 2, Resolved: 2}, nil).Once()
	env.OnActivity("RunBackfillPage", mock.Anything, domain.KindTalent, "t2", 2).
		Return(usecases.BackfillPage{Kind: domain.KindTalent, AfterID: "t3", Scanned: 1, Skipped: 1, Done: true}, nil).Once()
	env.OnActivity("RunBackfillPage", mock.Anything, domain.KindBusiness, "", 2).
		Return(usecases.BackfillPage{Kind: domain.KindBusiness, Done: true}, nil).Once()

	env.ExecuteWorkflow(GeocodeBackfillWorkflow, BackfillInput{
		Kinds:    []domain.EntityKind{domain.KindTalent, domain.KindBusiness},
		PageSize: 2,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result BackfillResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, BackfillResult{Pages: 3, Scanned: 3, Resolved: 2, Skipped: 1}, result)
	env.AssertExpectations(t)
}

func TestGeocodeBackfillWorkflow_StopsOnActivityError(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&BackfillActivities{})

	env.OnActivity("RunBackfillPage", mock.Anything, domain.KindJob, "", defaultPageSize).
		Return(usecases.BackfillPage{}, temporal.NewNonRetryableApplicationError("geocoding is not configured", ErrTypeMissingCredentials, nil))

	env.ExecuteWorkflow(GeocodeBackfillWorkflow, BackfillInput{Kinds: []domain.EntityKind{domain.KindJob}})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeMissingCredentials, appErr.Type())
}

type stubEntities struct {
	rows  []domain.Entity
	saved map[string]domain.GeoPoint
}

func (s *stubEntities) Fetch(ctx context.Context, kind domain.EntityKind, columns []string, q ports.EntityQuery) ([]domain.Entity, error) {
	return nil, nil
}

func (s *stubEntities) ListUngeolocated(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
	return s.rows, nil
}

func (s *stubEntities) SaveCoordinates(ctx context.Context, kind domain.EntityKind, id string, p domain.GeoPoint) error {
	s.saved[id] = p
	return nil
}

type stubResolver struct{ err error }

func (r stubResolver) Resolve(ctx context.Context, key string) (domain.GeoPoint, bool, error) {
	if r.err != nil {
		return domain.GeoPoint{}, false, r.err
	}
	return domain.GeoPoint{Lat: -33.8688, Lng: 151.2093}, true, nil
}

func TestRunBackfillPage(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	entities := &stubEntities{
		rows:  []domain.Entity{{ID: "b1", Kind: domain.KindBusiness, City: "Sydney", State: "NSW"}},
		saved: map[string]domain.GeoPoint{},
	}
	env.RegisterActivity(&BackfillActivities{Backfill: usecases.NewGeocodeBackfill(entities, stubResolver{}, nil)})

	val, err := env.ExecuteActivity("RunBackfillPage", domain.KindBusiness, "", 10)
	require.NoError(t, err)
	var page usecases.BackfillPage
	require.NoError(t, val.Get(&page))
	assert.Equal(t, 1, page.Resolved)
	assert.True(t, page.Done)
	assert.Contains(t, entities.saved, "b1")
}

func TestRunBackfillPage_MissingCredentialsIsNonRetryable(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	entities := &stubEntities{
		rows:  []domain.Entity{{ID: "b1", Kind: domain.KindBusiness, City: "Sydney"}},
		saved: map[string]domain.GeoPoint{},
	}
	env.RegisterActivity(&BackfillActivities{Backfill: usecases.NewGeocodeBackfill(entities, stubResolver{err: ports.ErrMissingCredentials}, nil)})

	_, err := env.ExecuteActivity("RunBackfillPage", domain.KindBusiness, "", 10)
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Empty(t, entities.saved)
}

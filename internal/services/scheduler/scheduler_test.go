package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/models"
)

type recordingStarter struct {
	calls []string
}

func (r *recordingStarter) StartRun(_ context.Context, sourceID, _ string) (*models.IngestionRun, error) {
	r.calls = append(r.calls, sourceID)
	return &models.IngestionRun{RunID: "run-" + sourceID, SourceID: sourceID, Status: models.RunQueued}, nil
}

type stubRunStorage struct {
	active map[string]bool
}

func (s *stubRunStorage) Create(context.Context, *models.IngestionRun) error { return nil }
func (s *stubRunStorage) Update(context.Context, *models.IngestionRun) error { return nil }
func (s *stubRunStorage) Get(context.Context, string) (*models.IngestionRun, error) {
	return nil, nil
}
func (s *stubRunStorage) List(context.Context, int) ([]*models.IngestionRun, error) {
	return nil, nil
}

func (s *stubRunStorage) ListBySource(_ context.Context, sourceID string, _ int) ([]*models.IngestionRun, error) {
	if s.active[sourceID] {
		return []*models.IngestionRun{{RunID: "r1", SourceID: sourceID, Status: models.RunRunning}}, nil
	}
	return []*models.IngestionRun{{RunID: "r0", SourceID: sourceID, Status: models.RunCompleted}}, nil
}

func enabledSource(id, schedule string) models.SourceDefinition {
	return models.SourceDefinition{
		ID:       id,
		Category: "news",
		URLs:     []string{"https://example.com/feed"},
		Schedule: schedule,
		Enabled:  true,
	}
}

func TestRegisterSkipsDisabledAndUnscheduled(t *testing.T) {
	s := New(&recordingStarter{}, &stubRunStorage{})

	manual := enabledSource("manual", "")
	disabled := enabledSource("disabled", "@hourly")
	disabled.Enabled = false

	require.NoError(t, s.Register([]models.SourceDefinition{manual, disabled, enabledSource("toi", "@hourly")}))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	s := New(&recordingStarter{}, &stubRunStorage{})
	err := s.Register([]models.SourceDefinition{enabledSource("toi", "not a cron expr")})
	assert.Error(t, err)
}

func TestFireStartsRun(t *testing.T) {
	starter := &recordingStarter{}
	s := New(starter, &stubRunStorage{})

	s.fire(enabledSource("toi", "@hourly"))
	assert.Equal(t, []string{"toi"}, starter.calls)
}

func TestFireSkipsWhenRunStillActive(t *testing.T) {
	starter := &recordingStarter{}
	s := New(starter, &stubRunStorage{active: map[string]bool{"toi": true}})

	s.fire(enabledSource("toi", "@hourly"))
	assert.Empty(t, starter.calls, "an active run must suppress the scheduled fire")
}

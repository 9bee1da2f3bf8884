package services

import (
	"testing"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReducePhase_DisableFromAnyState(t *testing.T) {
	states := []PhaseState{
		InitialPhaseState(),
		{Phase: PhaseOffline, Status: models.SyncStatusOffline},
		{Phase: PhaseReady, Status: models.SyncStatusSynced, Intent: &Intent{}},
		{Phase: PhaseSyncing, Status: models.SyncStatusSyncing},
		{Phase: PhaseError, Status: models.SyncStatusError},
	}
	for _, s := range states {
		next := ReducePhase(s, InputsChanged{Enabled: false, Online: true})
		assert.Equal(t, PhaseDisabled, next.Phase)
		assert.Equal(t, models.SyncStatusIdle, next.Status)
		assert.Nil(t, next.Intent)
	}
}

func TestReducePhase_EnableSetsImmediateIntent(t *testing.T) {
	next := ReducePhase(InitialPhaseState(), InputsChanged{Enabled: true, Online: true})
	assert.Equal(t, PhaseReady, next.Phase)
	assert.Equal(t, models.SyncStatusIdle, next.Status)
	require.NotNil(t, next.Intent)
	assert.True(t, next.Intent.Immediate)
}

func TestReducePhase_OfflineToReadySetsImmediateIntent(t *testing.T) {
	s := PhaseState{Phase: PhaseOffline, Status: models.SyncStatusOffline}
	next := ReducePhase(s, InputsChanged{Enabled: true, Online: true})
	assert.Equal(t, PhaseReady, next.Phase)
	require.NotNil(t, next.Intent)
	assert.True(t, next.Intent.Immediate)
}

func TestReducePhase_ConnectivityLoss(t *testing.T) {
	s := PhaseState{Phase: PhaseReady, Status: models.SyncStatusSynced}
	next := ReducePhase(s, InputsChanged{Enabled: true, Online: false})
	assert.Equal(t, PhaseOffline, next.Phase)
	assert.Nil(t, next.Intent)

	// disabled stays disabled regardless of connectivity
	next = ReducePhase(InitialPhaseState(), InputsChanged{Enabled: false, Online: false})
	assert.Equal(t, PhaseDisabled, next.Phase)
}

func TestReducePhase_RequestRecordsIntentWhenSettled(t *testing.T) {
	ready := PhaseState{Phase: PhaseReady, Status: models.SyncStatusIdle}
	next := ReducePhase(ready, SyncRequested{})
	assert.Equal(t, PhaseReady, next.Phase, "recording intent does not start work")
	require.NotNil(t, next.Intent)
	assert.False(t, next.Intent.Immediate)

	// a settled error still accepts requests: the next trigger re-attempts
	errored := PhaseState{Phase: PhaseError, Status: models.SyncStatusError}
	next = ReducePhase(errored, SyncRequested{Immediate: true})
	assert.Equal(t, PhaseError, next.Phase)
	require.NotNil(t, next.Intent)
	assert.True(t, next.Intent.Immediate)

	syncing := PhaseState{Phase: PhaseSyncing, Status: models.SyncStatusSyncing}
	assert.Equal(t, syncing, ReducePhase(syncing, SyncRequested{}))

	offline := PhaseState{Phase: PhaseOffline, Status: models.SyncStatusOffline}
	assert.Equal(t, offline, ReducePhase(offline, SyncRequested{}))
}

func TestReducePhase_SyncCycle(t *testing.T) {
	ready := PhaseState{Phase: PhaseReady, Status: models.SyncStatusIdle}

	syncing := ReducePhase(ready, SyncStarted{})
	assert.Equal(t, PhaseSyncing, syncing.Phase)
	assert.Equal(t, models.SyncStatusSyncing, syncing.Status)

	done := ReducePhase(syncing, SyncFinished{Status: models.SyncStatusSynced})
	assert.Equal(t, PhaseState{Phase: PhaseReady, Status: models.SyncStatusSynced}, done)
}

func TestReducePhase_SyncFinishedRouting(t *testing.T) {
	syncing := PhaseState{Phase: PhaseSyncing, Status: models.SyncStatusSyncing}

	tests := []struct {
		status    models.SyncStatus
		wantPhase Phase
	}{
		{models.SyncStatusSynced, PhaseReady},
		{models.SyncStatusOffline, PhaseOffline},
		{models.SyncStatusError, PhaseError},
	}
	for _, tt := range tests {
		next := ReducePhase(syncing, SyncFinished{Status: tt.status})
		assert.Equal(t, tt.wantPhase, next.Phase)
		assert.Equal(t, tt.status, next.Status)
		assert.Nil(t, next.Intent)
	}
}

func TestReducePhase_SyncFinishedIgnoredOutsideSyncing(t *testing.T) {
	ready := PhaseState{Phase: PhaseReady, Status: models.SyncStatusSynced}
	assert.Equal(t, ready, ReducePhase(ready, SyncFinished{Status: models.SyncStatusError}))
}

func TestPhaseMachine_DispatchAndNotify(t *testing.T) {
	var seen []PhaseState
	m := NewPhaseMachine(func(s PhaseState) { seen = append(seen, s) })

	m.Dispatch(InputsChanged{Enabled: true, Online: true})
	m.Dispatch(SyncStarted{})
	m.Dispatch(SyncFinished{Status: models.SyncStatusSynced})
	// no-op event does not notify
	m.Dispatch(SyncFinished{Status: models.SyncStatusSynced})

	require.Len(t, seen, 3)
	assert.Equal(t, PhaseReady, seen[0].Phase)
	assert.Equal(t, PhaseSyncing, seen[1].Phase)
	assert.Equal(t, PhaseReady, seen[2].Phase)
}

func TestPhaseMachine_TakeIntent(t *testing.T) {
	m := NewPhaseMachine(nil)
	m.Dispatch(InputsChanged{Enabled: true, Online: true})

	intent := m.TakeIntent()
	require.NotNil(t, intent)
	assert.True(t, intent.Immediate)
	assert.Nil(t, m.TakeIntent(), "intent pops once")
}

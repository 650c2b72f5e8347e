package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_PermitAndFire(t *testing.T) {
	g := NewTransitionGraph()
	g.From(StateAwaitingPhoto).
		Permit(TriggerDocumentAccepted, StatePhotoUploaded).
		Permit(TriggerCancel, StateCancelled)

	m := g.Machine(StateAwaitingPhoto)

	assert.Equal(t, StateAwaitingPhoto, m.State())
	assert.True(t, m.CanFire(TriggerDocumentAccepted))
	assert.False(t, m.CanFire(TriggerConfirm))

	require.NoError(t, m.Fire(context.Background(), TriggerDocumentAccepted))
	assert.Equal(t, StatePhotoUploaded, m.State())
}

func TestMachine_FireInvalidTrigger(t *testing.T) {
	g := NewTransitionGraph()
	g.From(StateAwaitingPhoto).
		Permit(TriggerDocumentAccepted, StatePhotoUploaded)

	m := g.Machine(StateAwaitingPhoto)

	err := m.Fire(context.Background(), TriggerApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateAwaitingPhoto, m.State())
}

func TestMachine_StateWithoutEdges(t *testing.T) {
	m := NewTransitionGraph().Machine(StateCompleted)

	assert.False(t, m.CanFire(TriggerStart))
	assert.Empty(t, m.PermittedTriggers())

	err := m.Fire(context.Background(), TriggerStart)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMachine_GuardBlocks(t *testing.T) {
	allowed := false
	g := NewTransitionGraph()
	g.From(StatePhotoUploaded).
		PermitIf(TriggerConfirm, StatePhotoValidated, func(ctx context.Context) bool {
			return allowed
		})

	m := g.Machine(StatePhotoUploaded)

	err := m.Fire(context.Background(), TriggerConfirm)
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.Equal(t, StatePhotoUploaded, m.State())

	allowed = true
	require.NoError(t, m.Fire(context.Background(), TriggerConfirm))
	assert.Equal(t, StatePhotoValidated, m.State())
}

func TestMachine_GuardFallthrough(t *testing.T) {
	// First edge whose guard passes wins
	g := NewTransitionGraph()
	g.From(StatePhotoValidated).
		PermitIf(TriggerAdvance, StateAwaitingTraining, func(ctx context.Context) bool { return false }).
		Permit(TriggerAdvance, StateReadyForSubmission)

	m := g.Machine(StatePhotoValidated)

	require.NoError(t, m.Fire(context.Background(), TriggerAdvance))
	assert.Equal(t, StateReadyForSubmission, m.State())
}

func TestMachine_PanicsOnInvalidStates(t *testing.T) {
	assert.Panics(t, func() {
		NewTransitionGraph().From(State("bogus"))
	})
	assert.Panics(t, func() {
		NewTransitionGraph().Machine(State("bogus"))
	})
	assert.Panics(t, func() {
		NewTransitionGraph().From(StateAwaitingPhoto).Permit(TriggerStart, State("bogus"))
	})
}

func TestMachine_GraphReuse(t *testing.T) {
	g := NewTransitionGraph()
	g.From(StateAwaitingPhoto).
		Permit(TriggerDocumentAccepted, StatePhotoUploaded)

	first := g.Machine(StateAwaitingPhoto)
	second := g.Machine(StateAwaitingPhoto)

	require.NoError(t, first.Fire(context.Background(), TriggerDocumentAccepted))

	// Machines minted from one graph stay independent
	assert.Equal(t, StatePhotoUploaded, first.State())
	assert.Equal(t, StateAwaitingPhoto, second.State())
}

func TestMachine_PermittedTriggersSorted(t *testing.T) {
	m := BuildRenewalMachine(StatePhotoUploaded)

	triggers := m.PermittedTriggers()
	assert.Equal(t, []Trigger{TriggerCancel, TriggerConfirm, TriggerEscalate, TriggerReject}, triggers)
}

package workflow

// transitionTable is the single source of truth for permitted renewal
// transitions. Both the builder machine and TransitionAllowed derive from it.
var transitionTable = map[State]map[Trigger][]State{
	StateGeneralInquiry: {
		TriggerStart:    {StateAwaitingPhoto},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StateAwaitingPhoto: {
		TriggerDocumentAccepted: {StatePhotoUploaded},
		TriggerCancel:           {StateCancelled},
		TriggerEscalate:         {StateEscalated},
	},
	StatePhotoUploaded: {
		TriggerConfirm:  {StatePhotoValidated},
		TriggerReject:   {StateAwaitingPhoto},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StatePhotoValidated: {
		TriggerAdvance:  {StateAwaitingTraining, StateReadyForSubmission},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StateAwaitingTraining: {
		TriggerDocumentAccepted: {StateTrainingUploaded},
		TriggerCancel:           {StateCancelled},
		TriggerEscalate:         {StateEscalated},
	},
	StateTrainingUploaded: {
		TriggerConfirm:  {StateTrainingValidated},
		TriggerReject:   {StateAwaitingTraining},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StateTrainingValidated: {
		TriggerAdvance:  {StateReadyForSubmission},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StateReadyForSubmission: {
		TriggerAdvance:          {StateAwaitingSubmission},
		TriggerRecordSubmission: {StateSubmitted},
		TriggerCancel:           {StateCancelled},
		TriggerEscalate:         {StateEscalated},
	},
	StateAwaitingSubmission: {
		TriggerRecordSubmission: {StateSubmitted},
		TriggerFail:             {StateFailed},
		TriggerCancel:           {StateCancelled},
		TriggerEscalate:         {StateEscalated},
	},
	StateSubmitted: {
		TriggerAdvance:  {StateAwaitingApproval},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StateAwaitingApproval: {
		TriggerApprove:  {StateCompleted},
		TriggerFail:     {StateFailed},
		TriggerCancel:   {StateCancelled},
		TriggerEscalate: {StateEscalated},
	},
	StateEscalated: {
		TriggerResume: {
			StateGeneralInquiry,
			StateAwaitingPhoto,
			StatePhotoUploaded,
			StatePhotoValidated,
			StateAwaitingTraining,
			StateTrainingUploaded,
			StateTrainingValidated,
			StateReadyForSubmission,
			StateAwaitingSubmission,
			StateSubmitted,
			StateAwaitingApproval,
		},
		TriggerFail:   {StateFailed},
		TriggerCancel: {StateCancelled},
	},
	// completed, failed and cancelled are terminal - no outgoing transitions
}

// renewalGraph builds the transition graph from the table
func renewalGraph() *TransitionGraph {
	g := NewTransitionGraph()
	for from, triggers := range transitionTable {
		set := g.From(from)
		for trigger, targets := range triggers {
			for _, to := range targets {
				set.Permit(trigger, to)
			}
		}
	}
	return g
}

// BuildRenewalMachine mints a machine positioned at initialState
func BuildRenewalMachine(initialState State) *Machine {
	return renewalGraph().Machine(initialState)
}

// AvailableTriggers lists the triggers that may fire from a state,
// sorted. Terminal states return an empty list.
func AvailableTriggers(state State) []Trigger {
	if !state.IsValid() {
		return nil
	}
	return BuildRenewalMachine(state).PermittedTriggers()
}

// TransitionAllowed reports whether trigger may move from one state to another
func TransitionAllowed(from State, trigger Trigger, to State) bool {
	triggers, ok := transitionTable[from]
	if !ok {
		return false
	}
	for _, target := range triggers[trigger] {
		if target == to {
			return true
		}
	}
	return false
}

package models

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusAssigned RequestStatus = "assigned"
	StatusAnswered RequestStatus = "answered"
	StatusClosed   RequestStatus = "closed"
	StatusDeclined RequestStatus = "declined"
)

// ActiveStatuses are the non-terminal statuses. Requests in these statuses
// block category deletion and count against the submission limit.
var ActiveStatuses = []RequestStatus{StatusPending, StatusApproved, StatusAssigned, StatusAnswered}

// HoldingStatuses are the statuses in which the assignee holds the request.
var HoldingStatuses = []RequestStatus{StatusAssigned, StatusAnswered}

func (s RequestStatus) IsActive() bool { return s.in(ActiveStatuses) }
func (s RequestStatus) IsTerminal() bool { return s == StatusClosed || s == StatusDeclined }
func (s RequestStatus) IsHolding() bool { return s.in(HoldingStatuses) }

func (s RequestStatus) in(set []RequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type Event string

const (
	EventSubmit           Event = "submit"
	EventApprove          Event = "approve"
	EventDecline          Event = "decline"
	EventTake             Event = "take"
	EventSubmitAnswer     Event = "submit_answer"
	EventApproveAnswer    Event = "approve_answer"
	EventDeclineAnswer    Event = "decline_answer"
	EventRejectAssignment Event = "reject_assignment"
)

// Transition is one row of the request state machine.
type Transition struct {
	From []RequestStatus // empty for EventSubmit
	To   RequestStatus
}

// Transitions is the request state machine. Every status change goes
// through Next, so guards live in one place.
var Transitions = map[Event]Transition{
	EventSubmit:           {To: StatusPending},
	EventApprove:          {From: []RequestStatus{StatusPending}, To: StatusApproved},
	EventDecline:          {From: []RequestStatus{StatusPending}, To: StatusDeclined},
	EventTake:             {From: []RequestStatus{StatusApproved}, To: StatusAssigned},
	EventSubmitAnswer:     {From: []RequestStatus{StatusAssigned}, To: StatusAnswered},
	EventApproveAnswer:    {From: []RequestStatus{StatusAnswered}, To: StatusClosed},
	EventDeclineAnswer:    {From: []RequestStatus{StatusAnswered}, To: StatusAssigned},
	EventRejectAssignment: {From: []RequestStatus{StatusAssigned, StatusAnswered}, To: StatusApproved},
}

// Next returns the status reached by applying event to from, or
// ErrStatusMismatch when the event is not allowed in that status.
func Next(event Event, from RequestStatus) (RequestStatus, error) {
	t, ok := Transitions[event]
	if !ok {
		return "", ErrStatusMismatch
	}
	if len(t.From) == 0 {
		if from != "" {
			return "", ErrStatusMismatch
		}
		return t.To, nil
	}
	if !from.in(t.From) {
		return "", ErrStatusMismatch
	}
	return t.To, nil
}

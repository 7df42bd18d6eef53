// Package convo tracks which multi-turn input flow each actor is in.
//
// A flow is a linear chain of phases. Begin starts (or replaces) the actor's
// flow, Advance moves it forward only when the actor is still in the
// expected phase, and End drops it. Handlers that find no state or a
// different phase must treat the input as out-of-band.
package convo

import (
	"context"

	"github.com/lawclinic/helpdesk-bot/internal/models"
)

type Flow string

// Requester flows.
const (
	FlowSelectingCategory    Flow = "selecting_category"
	FlowEnteringRequest      Flow = "entering_request"
	FlowConfirmingRequest    Flow = "confirming_request"
	FlowSelectingFAQCategory Flow = "selecting_faq_category"
	FlowSelectingFAQ         Flow = "selecting_faq"
)

// Admin flows.
const (
	FlowEnteringDeclineReason       Flow = "entering_decline_reason"
	FlowEnteringAnswerDeclineReason Flow = "entering_answer_decline_reason"
	FlowEnteringCategoryName        Flow = "entering_category_name"
	FlowEnteringCategoryHashtag     Flow = "entering_category_hashtag"
	FlowEnteringNewCategoryName     Flow = "entering_new_category_name"
	FlowEnteringNewCategoryHashtag  Flow = "entering_new_category_hashtag"
	FlowEnteringFAQQuestion         Flow = "entering_faq_question"
	FlowEnteringFAQAnswer           Flow = "entering_faq_answer"
	FlowPickingFAQCategory          Flow = "picking_faq_category"
	FlowEnteringNewFAQQuestion      Flow = "entering_new_faq_question"
	FlowEnteringNewFAQAnswer        Flow = "entering_new_faq_answer"
)

// Student flows.
const (
	FlowWritingAnswer    Flow = "writing_answer"
	FlowConfirmingAnswer Flow = "confirming_answer"
)

// Payload is the data collected by earlier phases of a flow.
type Payload struct {
	RequestID  int64  `json:"request_id,omitempty"`
	CategoryID int64  `json:"category_id,omitempty"`
	FAQID      int64  `json:"faq_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Text       string `json:"text,omitempty"`
}

type State struct {
	Flow    Flow    `json:"flow"`
	Payload Payload `json:"payload"`
}

// Tracker is one keyspace of conversation state.
type Tracker interface {
	// Begin starts flow for actorID, replacing any flow in progress.
	Begin(ctx context.Context, actorID int64, flow Flow, payload Payload) error
	// Current returns the actor's state and false when there is none.
	Current(ctx context.Context, actorID int64) (State, bool, error)
	// Advance moves the actor from expected to next, applying patch to the
	// payload. It returns models.ErrStateMismatch when the actor has no
	// state or is in a different phase.
	Advance(ctx context.Context, actorID int64, expected, next Flow, patch func(*Payload)) (State, error)
	End(ctx context.Context, actorID int64) error
}

// Trackers holds the three independent keyspaces.
type Trackers struct {
	Requester Tracker
	Admin     Tracker
	Student   Tracker
}

func NewMemoryTrackers() Trackers {
	return Trackers{
		Requester: NewMemory(),
		Admin:     NewMemory(),
		Student:   NewMemory(),
	}
}

// EndAll drops the actor's state in every keyspace.
func (t Trackers) EndAll(ctx context.Context, actorID int64) error {
	for _, tr := range []Tracker{t.Requester, t.Admin, t.Student} {
		if err := tr.End(ctx, actorID); err != nil {
			return err
		}
	}
	return nil
}

func mismatch(expected Flow, st State, ok bool) error {
	if !ok || st.Flow != expected {
		return models.ErrStateMismatch
	}
	return nil
}

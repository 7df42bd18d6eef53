package lifecycle

import (
	"github.com/lawclinic/helpdesk-bot/internal/action"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

// Menu selects the reply keyboard sent along with a notice.
type Menu int

const (
	MenuNone Menu = iota
	MenuMain
	MenuStudent
	MenuAnswerConfirm
)

// Control is an inline button. Label is a catalog key.
type Control struct {
	Label string
	Token action.Token
}

// Notice is an outbound message produced by a transition. It is rendered in
// Locale, or the default locale when Locale is empty.
type Notice struct {
	ChatID   int64
	Locale   string
	Key      string
	Args     translator.Args
	Controls [][]Control
	Menu     Menu
}

func takeControls(requestID int64) [][]Control {
	return [][]Control{{{Label: "ctl_take", Token: action.New(action.TakeRequest, requestID)}}}
}

func triageControls(requestID int64) [][]Control {
	return [][]Control{{
		{Label: "ctl_approve", Token: action.New(action.ApproveRequest, requestID)},
		{Label: "ctl_decline", Token: action.New(action.DeclineRequest, requestID)},
	}}
}

func reviewControls(requestID int64) [][]Control {
	return [][]Control{{
		{Label: "ctl_approve_answer", Token: action.New(action.ApproveAnswer, requestID)},
		{Label: "ctl_decline_answer", Token: action.New(action.DeclineAnswer, requestID)},
	}}
}

func resubmitControls(requestID int64) [][]Control {
	return [][]Control{{
		{Label: "ctl_resubmit", Token: action.New(action.EditAnswer, requestID)},
		{Label: "ctl_reject", Token: action.New(action.RejectAssignment, requestID)},
	}}
}

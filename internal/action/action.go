// Package action encodes and decodes inline button payloads.
//
// The wire shape is "<verb>", "<verb>:<id>" or "<verb>:<id>:<id2>", with
// "lang:<code>" as the only payload that carries a non-numeric argument.
// Payloads are parsed once at the dispatch boundary; handlers receive a Token.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	ApproveRequest   Kind = "approve_request"
	DeclineRequest   Kind = "decline_request"
	ApproveAnswer    Kind = "approve_answer"
	DeclineAnswer    Kind = "decline_answer"
	TakeRequest      Kind = "take_request"
	EditAnswer       Kind = "edit_answer"
	RejectAssignment Kind = "reject_assignment"

	EditCategory          Kind = "edit_category"
	EditCategoryName      Kind = "edit_category_name"
	EditCategoryHashtag   Kind = "edit_category_hashtag"
	DeleteCategory        Kind = "delete_category"
	ConfirmDeleteCategory Kind = "confirm_delete_category"

	SelectFAQCategory       Kind = "select_faq_category"
	EditFAQSelectCategory   Kind = "edit_faq_select_category"
	EditFAQ                 Kind = "edit_faq"
	EditFAQQuestion         Kind = "edit_faq_question"
	EditFAQAnswer           Kind = "edit_faq_answer"
	EditFAQCategory         Kind = "edit_faq_category"
	SetFAQCategory          Kind = "set_faq_category"
	DeleteFAQSelectCategory Kind = "delete_faq_select_category"
	DeleteFAQ               Kind = "delete_faq"
	ConfirmDeleteFAQ        Kind = "confirm_delete_faq"

	Cancel   Kind = "cancel"
	Language Kind = "lang"
)

// arity is the number of numeric ids each kind carries. Language is -1.
var arity = map[Kind]int{
	ApproveRequest:          1,
	DeclineRequest:          1,
	ApproveAnswer:           1,
	DeclineAnswer:           1,
	TakeRequest:             1,
	EditAnswer:              1,
	RejectAssignment:        1,
	EditCategory:            1,
	EditCategoryName:        1,
	EditCategoryHashtag:     1,
	DeleteCategory:          1,
	ConfirmDeleteCategory:   1,
	SelectFAQCategory:       1,
	EditFAQSelectCategory:   1,
	EditFAQ:                 1,
	EditFAQQuestion:         1,
	EditFAQAnswer:           1,
	EditFAQCategory:         1,
	SetFAQCategory:          2,
	DeleteFAQSelectCategory: 1,
	DeleteFAQ:               1,
	ConfirmDeleteFAQ:        1,
	Cancel:                  0,
	Language:                -1,
}

var ErrMalformed = errors.New("malformed action token")

// Token is a decoded button payload.
type Token struct {
	Kind   Kind
	ID     int64
	ID2    int64
	Locale string // only for Language
}

func New(kind Kind, ids ...int64) Token {
	t := Token{Kind: kind}
	if len(ids) > 0 {
		t.ID = ids[0]
	}
	if len(ids) > 1 {
		t.ID2 = ids[1]
	}
	return t
}

func NewLanguage(locale string) Token {
	return Token{Kind: Language, Locale: locale}
}

// String composes the wire form of t.
func (t Token) String() string {
	switch arity[t.Kind] {
	case -1:
		return string(t.Kind) + ":" + t.Locale
	case 0:
		return string(t.Kind)
	case 1:
		return fmt.Sprintf("%s:%d", t.Kind, t.ID)
	default:
		return fmt.Sprintf("%s:%d:%d", t.Kind, t.ID, t.ID2)
	}
}

// Parse decodes a button payload. Unknown verbs, wrong arity and
// non-numeric ids are rejected with ErrMalformed.
func Parse(data string) (Token, error) {
	parts := strings.Split(data, ":")
	kind := Kind(parts[0])
	n, ok := arity[kind]
	if !ok {
		return Token{}, fmt.Errorf("%w: unknown verb %q", ErrMalformed, parts[0])
	}
	args := parts[1:]

	if n == -1 {
		if len(args) != 1 || args[0] == "" {
			return Token{}, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		return NewLanguage(args[0]), nil
	}
	if len(args) != n {
		return Token{}, fmt.Errorf("%w: %q expects %d ids", ErrMalformed, data, n)
	}

	ids := make([]int64, 0, n)
	for _, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %q: %v", ErrMalformed, data, err)
		}
		ids = append(ids, v)
	}
	return New(kind, ids...), nil
}

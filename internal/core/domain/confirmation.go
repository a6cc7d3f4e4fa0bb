package domain

import "fmt"

// ConfirmationAnswer is the state of one confirmation request.
type ConfirmationAnswer int

const (
	AnswerPending ConfirmationAnswer = iota
	AnswerAccepted
	AnswerRejected
)

func AnswerOf(accepted bool) ConfirmationAnswer {
	if accepted {
		return AnswerAccepted
	}
	return AnswerRejected
}

func (a ConfirmationAnswer) String() string {
	switch a {
	case AnswerPending:
		return "pending"
	case AnswerAccepted:
		return "accepted"
	case AnswerRejected:
		return "rejected"
	default:
		return fmt.Sprintf("answer(%d)", int(a))
	}
}

func (a ConfirmationAnswer) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *ConfirmationAnswer) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*a = AnswerPending
	case "accepted":
		*a = AnswerAccepted
	case "rejected":
		*a = AnswerRejected
	default:
		return fmt.Errorf("unknown confirmation answer %q", text)
	}
	return nil
}

type Confirmation struct {
	ID     string             `json:"id"`
	Title  string             `json:"title"`
	Body   string             `json:"body"`
	Answer ConfirmationAnswer `json:"answer"`
}

// Navigation is the resolved target of a navigateTo request.
type Navigation struct {
	RouteKey string `json:"route_key"`
	URL      string `json:"url"`
	NewTab   bool   `json:"new_tab"`
}

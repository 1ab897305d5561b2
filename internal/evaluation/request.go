package evaluation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits on caller-supplied evaluation input.
const (
	MaxStatementLen = 5000
	MaxContextLen   = 20000
	MaxAgents       = 16
)

var ErrInvalidRequest = errors.New("invalid evaluation request")

// Request is a statement submitted for evaluation by an outer surface
// (HTTP or MCP).
type Request struct {
	Statement string   `json:"statement"`
	Speaker   string   `json:"speaker,omitempty"`
	Role      string   `json:"role,omitempty"`
	Party     string   `json:"party,omitempty"`
	Where     string   `json:"where,omitempty"`
	When      string   `json:"when,omitempty"`
	Context   string   `json:"context,omitempty"`
	Agents    []string `json:"agents,omitempty"`
}

// Validate checks presence and size limits. Errors wrap ErrInvalidRequest.
func (r Request) Validate() error {
	var msg string
	switch {
	case strings.TrimSpace(r.Statement) == "":
		msg = "statement is required"
	case utf8.RuneCountInString(r.Statement) > MaxStatementLen:
		msg = "statement too long"
	case utf8.RuneCountInString(r.Context) > MaxContextLen:
		msg = "context too long"
	case len(r.Agents) > MaxAgents:
		msg = "too many agents"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func (r Request) ToStatement() Statement {
	return Statement{
		Text:       strings.TrimSpace(r.Statement),
		Speaker:    Speaker{Name: r.Speaker, Role: r.Role, Party: r.Party},
		Background: Background{Where: r.Where, When: r.When},
	}
}

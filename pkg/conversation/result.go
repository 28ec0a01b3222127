package conversation

import (
	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/session"
)

// Result is what a ContentHandler decides for one event: either a Reply or a
// BusinessError.
type Result interface {
	result()
}

// Reply answers the event with Messages and replaces the user's live context
// with Context when it is non-nil. A nil Context refreshes the live one.
type Reply struct {
	Messages []line.Message
	Context  *session.Context
}

// BusinessError is a user mistake. The router answers it with Instruction and
// only refreshes the live context; session and state stay as they were.
type BusinessError struct {
	Instruction string
}

func (Reply) result()         {}
func (BusinessError) result() {}

// Error lets a BusinessError travel as an error inside a handler.
func (e BusinessError) Error() string {
	return e.Instruction
}

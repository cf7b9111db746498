package battle

import (
	"context"

	"github.com/fadedpez/caseclash/pkg/entities"
)

// command is a message processed by a session's goroutine
type command interface{ isCommand() }

type result struct {
	session     *entities.BattleSession
	participant *entities.Participant
	outcomes    []entities.RoundOutcome
	err         error
}

type request struct {
	ctx   context.Context
	reply chan result
}

func newRequest(ctx context.Context) request {
	return request{ctx: ctx, reply: make(chan result, 1)}
}

type joinCmd struct {
	request
	userID   string
	walletID string
}

type addBotCmd struct {
	request
}

type leaveCmd struct {
	request
	userID string
}

type connectionCmd struct {
	request
	userID    string
	connected bool
}

type advanceCmd struct {
	request
	round int
}

type cancelCmd struct {
	request
	reason string
}

type tickCmd struct {
	request
}

type shutdownCmd struct{}

func (joinCmd) isCommand()       {}
func (addBotCmd) isCommand()     {}
func (leaveCmd) isCommand()      {}
func (connectionCmd) isCommand() {}
func (advanceCmd) isCommand()    {}
func (cancelCmd) isCommand()     {}
func (tickCmd) isCommand()       {}
func (shutdownCmd) isCommand()   {}

package agent

import (
	"context"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/scout/pkg/tool"
)

// InvocationContext carries everything an agent needs for one run.
type InvocationContext interface {
	context.Context

	Agent() Agent
	Session() Session
	InvocationID() string

	// UserContent is the message that started the invocation.
	UserContent() *a2a.Message

	AgentName() string
	AppName() string
	UserID() string
	SessionID() string
}

// Session is the read view of a conversation an agent gets.
type Session interface {
	ID() string
	AppName() string
	UserID() string
	Events() Events
}

// Events is an ordered, read-only list of session events.
type Events interface {
	Len() int
	At(i int) *Event
	All() []*Event
}

// InvocationContextParams configures NewInvocationContext.
type InvocationContextParams struct {
	Agent        Agent
	Session      Session
	InvocationID string
	UserContent  *a2a.Message
}

type invocationContext struct {
	context.Context
	params InvocationContextParams
}

// NewInvocationContext binds params to ctx.
func NewInvocationContext(ctx context.Context, params InvocationContextParams) InvocationContext {
	return &invocationContext{Context: ctx, params: params}
}

func (c *invocationContext) Agent() Agent              { return c.params.Agent }
func (c *invocationContext) Session() Session          { return c.params.Session }
func (c *invocationContext) InvocationID() string      { return c.params.InvocationID }
func (c *invocationContext) UserContent() *a2a.Message { return c.params.UserContent }

func (c *invocationContext) AgentName() string {
	if c.params.Agent == nil {
		return ""
	}
	return c.params.Agent.Name()
}

func (c *invocationContext) AppName() string {
	if c.params.Session == nil {
		return ""
	}
	return c.params.Session.AppName()
}

func (c *invocationContext) UserID() string {
	if c.params.Session == nil {
		return ""
	}
	return c.params.Session.UserID()
}

func (c *invocationContext) SessionID() string {
	if c.params.Session == nil {
		return ""
	}
	return c.params.Session.ID()
}

// WithContext returns a copy of inv whose context is ctx. Used to thread
// span contexts through an invocation.
func WithContext(inv InvocationContext, ctx context.Context) InvocationContext {
	return &invocationContext{
		Context: ctx,
		params: InvocationContextParams{
			Agent:        inv.Agent(),
			Session:      inv.Session(),
			InvocationID: inv.InvocationID(),
			UserContent:  inv.UserContent(),
		},
	}
}

type toolContext struct {
	InvocationContext
	callID string
}

// NewToolContext returns the tool.Context for one tool call.
func NewToolContext(inv InvocationContext, functionCallID string) tool.Context {
	return &toolContext{InvocationContext: inv, callID: functionCallID}
}

func (c *toolContext) FunctionCallID() string { return c.callID }

var _ tool.Context = (*toolContext)(nil)

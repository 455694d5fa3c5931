package chat

import "PMarket/protocol"

type (
	Identity = protocol.Identity
	Room     = protocol.Room
)

var (
	ParseRoom      = protocol.ParseRoom
	ValidRoom      = protocol.ValidRoom
	ValidEventName = protocol.ValidEventName
)

// Handler processes one inbound event tag.
type Handler interface {
	Type() string
	Handle(ctx *Context, sess *Session, env *Envelope) error
}

// Context is handed to every handler invocation.
type Context struct {
	S *Server
}

package handlers

import "PMarket/service/chat"

// RegisterDefaults installs every protocol handler on srv.
func RegisterDefaults(srv *chat.Server) {
	for _, h := range []chat.Handler{
		NewAuthHandler(),
		NewJoinRoomHandler(),
		NewLeaveRoomHandler(),
		NewTypingStartHandler(),
		NewTypingStopHandler(),
		NewNewMessageHandler(),
		NewMessageReadHandler(),
		NewAddReactionHandler(),
		NewRemoveReactionHandler(),
		NewStatusHandler(),
		NewPingHandler(),
	} {
		srv.Register(h)
	}
}

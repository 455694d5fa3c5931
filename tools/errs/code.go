package errs

// Protocol error codes carried in "error" events.
const (
	NotAuthenticatedCode = 4001
	NotJoinedCode        = 4002
	InvalidRoomCode      = 4003
	BadPayloadCode       = 4004
	UnknownEventCode     = 4005
	AuthFailedCode       = 4006
	InvalidStatusCode    = 4007
	InvalidEventCode     = 4008

	UnauthorizedCode   = 4010
	RecordNotFoundCode = 4040

	ServerInternalError  = 5000
	StoreUnavailableCode = 5003
)

var (
	ErrNotAuthenticated = NewCodeError(NotAuthenticatedCode, "NOT_AUTHENTICATED")
	ErrNotJoined        = NewCodeError(NotJoinedCode, "NOT_JOINED")
	ErrInvalidRoom      = NewCodeError(InvalidRoomCode, "INVALID_ROOM")
	ErrBadPayload       = NewCodeError(BadPayloadCode, "BAD_PAYLOAD")
	ErrUnknownEvent     = NewCodeError(UnknownEventCode, "UNKNOWN_EVENT")
	ErrAuthFailed       = NewCodeError(AuthFailedCode, "AUTH_FAILED")
	ErrInvalidStatus    = NewCodeError(InvalidStatusCode, "INVALID_STATUS")
	ErrInvalidEvent     = NewCodeError(InvalidEventCode, "INVALID_EVENT")
	ErrInternal         = NewCodeError(ServerInternalError, "INTERNAL")

	ErrUnauthorized     = NewCodeError(UnauthorizedCode, "UNAUTHORIZED")
	ErrRecordNotFound   = NewCodeError(RecordNotFoundCode, "RECORD_NOT_FOUND")
	ErrStoreUnavailable = NewCodeError(StoreUnavailableCode, "STORE_UNAVAILABLE")
)

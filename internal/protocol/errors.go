package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Game routing/state.
	ErrGameNotFound = "E_GAME_NOT_FOUND"
	ErrGameFinished = "E_GAME_FINISHED"
	ErrInvalidState = "E_INVALID_STATE"

	// Order layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrInvalidOrder = "E_INVALID_ORDER"
	ErrNotOwner     = "E_NOT_OWNER"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrGameNotFound:    {},
	ErrGameFinished:    {},
	ErrInvalidState:    {},
	ErrBadRequest:      {},
	ErrInvalidOrder:    {},
	ErrNotOwner:        {},
	ErrRateLimit:       {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

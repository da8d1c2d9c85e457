package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Lobby.
	ErrLobbyFull    = "E_LOBBY_FULL"
	ErrLobbyClosed  = "E_LOBBY_CLOSED"
	ErrUnauthorized = "E_UNAUTHORIZED"

	// Round.
	ErrBadAction = "E_BAD_ACTION"
	ErrStale     = "E_STALE"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrLobbyFull:       {},
	ErrLobbyClosed:     {},
	ErrUnauthorized:    {},
	ErrBadAction:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

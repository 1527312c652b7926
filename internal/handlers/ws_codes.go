// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby channel handler. These give
// clients a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidDeviceIDError  = 3001 // No device identity supplied, or the session token was invalid.
	InvalidLobbyCodeError = 3002 // Lobby code in the WS URL is malformed or refers to no lobby.
	NotLobbyMemberError   = 3003 // Device is not a member of the target lobby.
)

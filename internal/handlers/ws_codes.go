// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby session flow. These give
// clients a more specific reason than the standard codes.
const (
	BadSubprotocolError = 3000 // client connected with an unsupported subprotocol
	InvalidLobbyIDError = 3003 // target lobby does not exist or is finished
)

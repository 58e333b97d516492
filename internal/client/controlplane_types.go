package client

// ControlPlaneConfig contains configuration for the dashboard server
type ControlPlaneConfig struct {
	Addr      string // Address to bind the dashboard server
	AuthToken string // Access token for the API and websocket, empty disables auth
	RateLimit string // Per-IP request rate in limiter format, e.g. "20-S"
}

const DefaultRateLimit = "20-S"

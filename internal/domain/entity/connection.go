package entity

// ConnectionState is the push channel lifecycle state.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
)

// ConnectionInfo is a snapshot of the push channel state machine.
type ConnectionInfo struct {
	State     ConnectionState `json:"state"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

package models

// GatewaySession is the resumable part of a socket's state.
type GatewaySession struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Sequence  int64  `json:"sequence"`
	UpdatedAt int64  `json:"updated_at"`
}

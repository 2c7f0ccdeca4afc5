package model

// InboundMessage is a text message received from the transport layer.
type InboundMessage struct {
	PollID     string `json:"poll_id"`
	UserID     string `json:"user_id"`
	Content    string `json:"content"`
	NewSession bool   `json:"new_session,omitempty"`
}

// Reply is the engine's response to an inbound message. ContinueSession is
// false when the transport should close the USSD/SMS session.
type Reply struct {
	Content         string `json:"content"`
	ContinueSession bool   `json:"continue_session"`
}

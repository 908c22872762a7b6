package core

// Client is a connected peer as seen by the core layer. The transport owns
// the socket; the core only knows the connection ID and the two channels.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
	}
}

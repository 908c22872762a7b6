package core

// Group tracks the live connections subscribed to a room code. It mirrors
// the persisted room record at the connection level and is only touched from
// the hub loop.
type Group struct {
	Code    string
	clients map[*Client]struct{}
}

// NewGroup constructs a group with no clients.
func NewGroup(code string) *Group {
	return &Group{
		Code:    code,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the group. Returns true if newly added.
func (g *Group) AddClient(c *Client) bool {
	if _, exists := g.clients[c]; exists {
		return false
	}
	g.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the group. Returns true if removed.
func (g *Group) RemoveClient(c *Client) bool {
	if _, exists := g.clients[c]; !exists {
		return false
	}
	delete(g.clients, c)
	return true
}

// Broadcast sends an event to all clients in the group.
func (g *Group) Broadcast(event *Event) {
	g.BroadcastExcept(event, nil)
}

// BroadcastExcept sends an event to all clients in the group except one.
func (g *Group) BroadcastExcept(event *Event, except *Client) {
	for client := range g.clients {
		if client == except {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// Empty returns true if no clients are in the group.
func (g *Group) Empty() bool {
	return len(g.clients) == 0
}

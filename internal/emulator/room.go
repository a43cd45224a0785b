package emulator

// Room groups clients subscribed to the same name, in join order.
type Room struct {
	Name    string
	clients map[*Client]struct{}
	order   []*Client
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	r.order = append(r.order, c)
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	for i, other := range r.order {
		if other == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Broadcast sends an event to every client in the room except skip, and
// returns how many were dropped because their queue was full.
func (r *Room) Broadcast(event *Event, skip *Client) int {
	dropped := 0
	for _, client := range r.order {
		if client == skip {
			continue
		}
		if !deliver(client, event) {
			dropped++
		}
	}
	return dropped
}

// Clients returns the members in join order.
func (r *Room) Clients() []*Client {
	return append([]*Client(nil), r.order...)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

func deliver(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}

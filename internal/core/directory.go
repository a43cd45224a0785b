package core

import "sort"

// Directory owns the rooms of one connection, keyed by name. It is not safe
// for concurrent use; Session serializes access to it.
type Directory struct {
	publisher Publisher
	rooms     map[string]*Room
}

// NewDirectory creates an empty directory whose rooms publish through p.
func NewDirectory(p Publisher) *Directory {
	return &Directory{
		publisher: p,
		rooms:     make(map[string]*Room),
	}
}

// GetOrCreate returns the room for name, creating it on first use. The
// second result is true when the room was created by this call.
func (d *Directory) GetOrCreate(name string) (*Room, bool) {
	if room, ok := d.rooms[name]; ok {
		return room, false
	}
	room := NewRoom(name, d.publisher)
	d.rooms[name] = room
	return room, true
}

// Find returns the room for name if it is tracked.
func (d *Directory) Find(name string) (*Room, bool) {
	room, ok := d.rooms[name]
	return room, ok
}

// Remove drops the room and clears its handlers. Removing an unknown name
// is a no-op.
func (d *Directory) Remove(name string) (*Room, bool) {
	room, ok := d.rooms[name]
	if !ok {
		return nil, false
	}
	delete(d.rooms, name)
	room.detach()
	return room, true
}

// Rooms returns every tracked room sorted by name.
func (d *Directory) Rooms() []*Room {
	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].name < rooms[j].name })
	return rooms
}

// Len returns the number of tracked rooms.
func (d *Directory) Len() int {
	return len(d.rooms)
}

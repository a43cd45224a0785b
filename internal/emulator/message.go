package emulator

import (
	"time"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

// Message is a published payload as relayed by the hub.
type Message struct {
	Room      string
	From      string
	Body      proto.Value
	CreatedAt time.Time
}

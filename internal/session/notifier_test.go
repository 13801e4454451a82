package session

import (
	"sync"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

type delivery struct {
	To       string
	Response entity.Response
}

// recordingNotifier keeps rooms like the websocket hub and records what each connection got.
type recordingNotifier struct {
	mu       sync.Mutex
	rooms    map[string]map[string]bool
	received []delivery
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{rooms: make(map[string]map[string]bool)}
}

func (that *recordingNotifier) Send(connID string, response entity.Response) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.received = append(that.received, delivery{To: connID, Response: response})
}

func (that *recordingNotifier) Broadcast(roomID string, response entity.Response) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for connID := range that.rooms[roomID] {
		that.received = append(that.received, delivery{To: connID, Response: response})
	}
}

func (that *recordingNotifier) Join(roomID, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.rooms[roomID] == nil {
		that.rooms[roomID] = make(map[string]bool)
	}
	that.rooms[roomID][connID] = true
}

func (that *recordingNotifier) Leave(roomID, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms[roomID], connID)
}

// to returns what connID received, in order.
func (that *recordingNotifier) to(connID string) []entity.Response {
	that.mu.Lock()
	defer that.mu.Unlock()

	var responses []entity.Response
	for _, d := range that.received {
		if d.To == connID {
			responses = append(responses, d.Response)
		}
	}
	return responses
}

func (that *recordingNotifier) last(connID string) entity.Response {
	responses := that.to(connID)
	if len(responses) == 0 {
		return entity.Response{}
	}
	return responses[len(responses)-1]
}

func (that *recordingNotifier) reset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.received = nil
}

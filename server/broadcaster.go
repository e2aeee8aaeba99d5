package server

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"synthsite/aggregator"
)

// Event is one server-sent event
type Event struct {
	Name string
	Data []byte
}

// Fragmenter renders the replaceable page regions of a view
type Fragmenter interface {
	Fragments(view aggregator.View) (map[string]string, error)
}

// Broadcaster pushes every rendered view to the connected SSE clients
type Broadcaster struct {
	sync.RWMutex
	clients    map[string]chan Event
	fragmenter Fragmenter
	onCount    func(count int)

	// notifyMu orders count callbacks; each one reads the count it reports
	notifyMu sync.Mutex
}

func NewBroadcaster(fragmenter Fragmenter) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[string]chan Event),
		fragmenter: fragmenter,
	}
}

// OnClientCount registers a callback run whenever a client connects or leaves
func (b *Broadcaster) OnClientCount(fn func(count int)) {
	b.Lock()
	defer b.Unlock()
	b.onCount = fn
}

// Render implements aggregator.Renderer
func (b *Broadcaster) Render(view aggregator.View) {
	payload := map[string]any{"view": view}
	if b.fragmenter != nil {
		fragments, err := b.fragmenter.Fragments(view)
		if err != nil {
			log.WithError(err).Error("Error rendering view fragments")
		}
		for id, fragment := range fragments {
			payload[id] = fragment
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Error marshalling view event")
		return
	}
	b.Broadcast(Event{Name: "view", Data: data})
}

func (b *Broadcaster) Broadcast(event Event) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.clients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.WithField("client", id).Warn("Client channel full, skipping event")
		}
	}
}

func (b *Broadcaster) AddClient(key string, client chan Event) {
	b.Lock()
	b.clients[key] = client
	b.Unlock()

	log.WithField("key", key).Info("Adding client to broadcaster")
	b.notifyCount()
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	client, ok := b.clients[key]
	if ok {
		close(client)
		delete(b.clients, key)
	}
	b.Unlock()

	if !ok {
		return
	}
	log.WithField("key", key).Info("Removed client from broadcaster")
	b.notifyCount()
}

// notifyCount reports the current client count. The count is read after
// taking notifyMu, so the last report always matches the final state even
// when connects and disconnects race.
func (b *Broadcaster) notifyCount() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.RLock()
	count, onCount := len(b.clients), b.onCount
	b.RUnlock()

	log.WithField("count", count).Debug("Broadcaster client count")
	if onCount != nil {
		onCount(count)
	}
}

func (b *Broadcaster) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
	b.Unlock()

	b.notifyCount()
}

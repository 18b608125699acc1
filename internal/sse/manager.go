package sse

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listenupapp/listenup-reader/internal/id"
	"github.com/listenupapp/listenup-reader/internal/speech"
)

const (
	queueSize         = 256
	clientQueueSize   = 64
	heartbeatInterval = 30 * time.Second
)

// Client is one connected event stream. A client with no topics receives everything;
// otherwise only events whose topic (the part of the type before the dot) it asked for.
type Client struct {
	ID          string
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	topics      map[string]bool
}

// Wants reports whether the client subscribed to evt. Heartbeats always pass.
func (c *Client) Wants(evt Event) bool {
	if len(c.topics) == 0 || evt.Type == EventHeartbeat {
		return true
	}
	return c.topics[evt.Type.Topic()]
}

// Manager fans events out to connected clients.
type Manager struct {
	logger    *slog.Logger
	heartbeat time.Duration
	seq       atomic.Uint64

	queue chan Event
	wg    sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*Client

	// closeMu guards queue against sends after Shutdown closes it.
	closeMu sync.RWMutex
	closed  bool
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		heartbeat: heartbeatInterval,
		queue:     make(chan Event, queueSize),
		clients:   make(map[string]*Client),
	}
}

// Start runs the broadcast loop until ctx is canceled or Shutdown closes the queue.
// A Start that loses the race with Shutdown returns without running.
func (m *Manager) Start(ctx context.Context) {
	// Registering under closeMu orders the Add before Shutdown's Wait.
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return
	}
	m.wg.Add(1)
	m.closeMu.Unlock()
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-m.queue:
			if !ok {
				return
			}
			m.broadcast(evt)
		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.disconnectAll()
			return
		}
	}
}

// Shutdown stops intake, delivers what is still queued, and disconnects every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		for evt := range m.queue {
			m.broadcast(evt)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE drain timed out, dropping queued events")
	}

	m.wg.Wait()
	m.disconnectAll()
	m.logger.Info("SSE manager shut down")
	return nil
}

// Emit queues evt for broadcast. It never blocks: events are dropped once the
// manager is shut down or while the queue is full.
func (m *Manager) Emit(evt Event) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- evt:
	default:
		m.logger.Error("SSE queue full, dropping event", slog.String("event_type", string(evt.Type)))
	}
}

// Relay emits every event of a driver subscription until it is closed.
// The returned channel closes once the subscription is drained.
func (m *Manager) Relay(sub *speech.Subscription) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub.Events() {
			m.Emit(NewPlaybackEvent(evt))
		}
	}()
	return done
}

// broadcast stamps evt with the next sequence number and hands it to every
// interested client, dropping it for clients whose buffer is full.
func (m *Manager) broadcast(evt Event) {
	evt.ID = m.seq.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var delivered, skipped, dropped int
	for _, c := range m.clients {
		if !c.Wants(evt) {
			skipped++
			continue
		}
		select {
		case c.EventChan <- evt:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", c.ID),
				slog.String("event_type", string(evt.Type)))
		}
	}

	if evt.Type != EventHeartbeat && evt.Type != EventPlaybackProgress {
		m.logger.Debug("event broadcast",
			slog.String("event_type", string(evt.Type)),
			slog.Uint64("id", evt.ID),
			slog.Int("delivered", delivered),
			slog.Int("skipped", skipped),
			slog.Int("dropped", dropped))
	}
}

// Connect registers a client interested in topics (all events when empty).
func (m *Manager) Connect(topics ...string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixSSEClient)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:          clientID,
		ConnectedAt: time.Now(),
		EventChan:   make(chan Event, clientQueueSize),
		Done:        make(chan struct{}),
	}
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			if c.topics == nil {
				c.topics = make(map[string]bool)
			}
			c.topics[t] = true
		}
	}

	m.mu.Lock()
	m.clients[c.ID] = c
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", c.ID),
		slog.Any("topics", topics),
		slog.Int("total_clients", total))
	return c, nil
}

// Disconnect removes a client and closes its channels. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}
	close(c.Done)
	close(c.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(c.ConnectedAt)),
		slog.Int("total_clients", total))
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) disconnectAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		close(c.Done)
		close(c.EventChan)
	}
	if len(clients) > 0 {
		m.logger.Info("all SSE clients disconnected", slog.Int("count", len(clients)))
	}
}

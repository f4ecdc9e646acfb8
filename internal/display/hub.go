// Package display fans kiosk snapshots out to the operator and spectator
// screens over WebSocket, optionally relayed through Redis so screens attached
// to another host see the same state.
package display

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/claude/treadmill/internal/models"
)

// DefaultChannel is the Redis pub/sub channel carrying snapshots.
const DefaultChannel = "treadmill:display"

const (
	clientBuffer = 16
	relayBuffer  = 32
	relayTimeout = 500 * time.Millisecond
)

// Hub is the display broadcaster. Slow clients miss intermediate snapshots
// rather than stalling the kiosk. Publish never waits on Redis: local screens
// are served first and the relay runs on its own goroutine.
type Hub struct {
	log     *slog.Logger
	redis   *redis.Client
	channel string
	origin  string
	relay   chan []byte

	mu      sync.RWMutex
	clients map[*Client]struct{}
	last    []byte
}

// Client is one attached screen.
type Client struct {
	Send chan []byte
}

// relayMessage is the pub/sub envelope. Origin lets a hub skip its own
// snapshots, which it already delivered locally.
type relayMessage struct {
	Origin string          `json:"origin"`
	State  json.RawMessage `json:"state"`
}

// ConnectRedis returns nil when addr is empty.
func ConnectRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              password,
		DB:                    db,
		ContextTimeoutEnabled: true,
	})
}

// NewHub creates a hub. With a Redis client, snapshots are also relayed
// through channel; the subscription and the relay run until ctx is cancelled.
func NewHub(ctx context.Context, redisClient *redis.Client, channel string, log *slog.Logger) (*Hub, error) {
	h := newHub(redisClient, channel, log)
	if redisClient != nil {
		pubsub := redisClient.Subscribe(ctx, h.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return nil, err
		}
		go h.subscribeRedis(ctx, pubsub)
		go h.runRelay(ctx)
	}
	return h, nil
}

func newHub(redisClient *redis.Client, channel string, log *slog.Logger) *Hub {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		redis:   redisClient,
		channel: channel,
		origin:  uuid.NewString(),
		relay:   make(chan []byte, relayBuffer),
		clients: map[*Client]struct{}{},
	}
}

// Register attaches a screen. It immediately receives the latest snapshot.
func (h *Hub) Register() *Client {
	c := &Client{Send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.Send <- h.last
	}
	return c
}

// Unregister detaches a screen and closes its channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
	}
}

// Clients returns the number of attached screens.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Last returns the most recent encoded snapshot, nil before the first one.
func (h *Hub) Last() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Publish encodes state, delivers it to local screens and queues it for the
// Redis relay. When the relay is backed up the snapshot is not relayed.
func (h *Hub) Publish(state models.DisplayState) {
	payload, err := json.Marshal(state)
	if err != nil {
		h.log.Error("encoding display state", "error", err)
		return
	}
	h.deliver(payload)
	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(relayMessage{Origin: h.origin, State: payload})
	if err != nil {
		h.log.Error("encoding relay message", "error", err)
		return
	}
	select {
	case h.relay <- msg:
	default:
		h.log.Debug("display relay backed up, dropping snapshot", "sequence", state.Sequence)
	}
}

// runRelay publishes queued snapshots, each bounded by relayTimeout.
func (h *Hub) runRelay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.relay:
			pctx, cancel := context.WithTimeout(ctx, relayTimeout)
			err := h.redis.Publish(pctx, h.channel, msg).Err()
			cancel()
			if err != nil {
				h.log.Warn("redis publish failed", "error", err)
			}
		}
	}
}

func (h *Hub) deliver(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = payload
	for c := range h.clients {
		select {
		case c.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				h.log.Debug("ignoring malformed relay message", "error", err)
				continue
			}
			if rm.Origin == h.origin {
				continue
			}
			h.deliver(rm.State)
		}
	}
}

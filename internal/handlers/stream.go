package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"perpmonitor/internal/cache"
	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

// PriceUpdate is one streamed price tick.
type PriceUpdate struct {
	Asset     string  `json:"asset,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Stream fans price updates from the Redis price channel out to connected
// SSE dashboard clients. Without a cache the endpoint serves heartbeats
// only.
type Stream struct {
	cache *cache.Cache

	mu      sync.Mutex
	clients map[chan PriceUpdate]bool
}

// NewStream builds the fan-out. priceCache may be nil.
func NewStream(priceCache *cache.Cache) *Stream {
	return &Stream{
		cache:   priceCache,
		clients: make(map[chan PriceUpdate]bool),
	}
}

// Start subscribes to the price channel and pumps updates to clients
// until ctx is cancelled. Safe to call with a nil cache.
func (s *Stream) Start(ctx context.Context) {
	if s.cache == nil {
		logger.Log.Info("No price cache, SSE stream serves heartbeats only")
		return
	}

	sub, err := s.cache.Subscribe(ctx)
	if err != nil {
		logger.Log.Error("Failed to subscribe to price updates", zap.Error(err))
		return
	}

	go func() {
		defer sub.Close()
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Log.Warn("Price stream receive failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			var update PriceUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				logger.Log.Warn("Malformed price update payload", zap.Error(err))
				continue
			}
			update.Timestamp = time.Now().UTC().Format(time.RFC3339)
			s.broadcast(update)
		}
	}()
}

// Handler serves the SSE connection at /stream/prices.
func (s *Stream) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan PriceUpdate, 10)

	s.mu.Lock()
	s.clients[clientChan] = true
	total := len(s.clients)
	s.mu.Unlock()
	logger.Log.Info("SSE client connected", zap.Int("total_clients", total))

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientChan)
		total := len(s.clients)
		s.mu.Unlock()
		logger.Log.Info("SSE client disconnected", zap.Int("total_clients", total))
	}()

	// Heartbeats keep proxies from closing idle connections.
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		var update PriceUpdate
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			update = PriceUpdate{Timestamp: time.Now().UTC().Format(time.RFC3339)}
		case update = <-clientChan:
		}

		data, err := json.Marshal(update)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (s *Stream) broadcast(update PriceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for clientChan := range s.clients {
		select {
		case clientChan <- update:
		default:
			logger.Log.Warn("Price update dropped for slow client")
		}
	}
}

package app

import (
	"context"
	"sync"
	"time"

	"episode_transcode_service/internal/transcode/domain"

	"github.com/google/uuid"
)

const subscriberBuffer = 8

// StatusHub 將狀態事件廣播給訂閱同一 episode 的 websocket
type StatusHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.StatusEvent]struct{}
}

// NewStatusHub create hub
func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[string]map[chan domain.StatusEvent]struct{})}
}

// Subscribe 回傳事件 channel 與取消訂閱函式
func (h *StatusHub) Subscribe(episodeID string) (<-chan domain.StatusEvent, func()) {
	ch := make(chan domain.StatusEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[episodeID] == nil {
		h.subs[episodeID] = make(map[chan domain.StatusEvent]struct{})
	}
	h.subs[episodeID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[episodeID], ch)
			if len(h.subs[episodeID]) == 0 {
				delete(h.subs, episodeID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish 推送事件，慢的訂閱者會被略過
func (h *StatusHub) Publish(event domain.StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[event.EpisodeID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers 訂閱數
func (h *StatusHub) Subscribers(episodeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[episodeID])
}

// Report implement StatusReporter
func (h *StatusHub) Report(_ context.Context, jobID string, update domain.StatusUpdate) error {
	h.Publish(domain.StatusEvent{
		EventID:   uuid.NewString(),
		EpisodeID: jobID,
		Update:    update,
		At:        time.Now().UTC(),
	})
	return nil
}

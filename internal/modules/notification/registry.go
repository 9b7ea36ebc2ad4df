package notification

import (
	"sync"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/sync/feed"
	"go.uber.org/zap"
)

// Notifier receives the insert callback for freshly merged push events.
type Notifier interface {
	NotifyInsert(recipientID string, n models.Notification)
}

// Registry holds one live feed per recipient. Each feed carries the push
// subscription; the registry forwards its insert callback to the notifier.
type Registry struct {
	mu       sync.Mutex
	gw       gateway.Gateway
	log      *zap.Logger
	notifier Notifier
	pageSize int
	feeds    map[string]*feed.Feed
}

func NewRegistry(gw gateway.Gateway, log *zap.Logger, notifier Notifier, pageSize int) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		gw:       gw,
		log:      log,
		notifier: notifier,
		pageSize: pageSize,
		feeds:    make(map[string]*feed.Feed),
	}
}

// Get returns the recipient's feed, creating and subscribing it on first use.
func (r *Registry) Get(recipientID string) (*feed.Feed, error) {
	r.mu.Lock()
	if f, ok := r.feeds[recipientID]; ok {
		r.mu.Unlock()
		return f, nil
	}
	f := feed.New(r.gw, r.log, recipientID, r.pageSize)
	r.feeds[recipientID] = f
	r.mu.Unlock()

	err := f.Subscribe(func(n models.Notification) {
		if r.notifier != nil {
			r.notifier.NotifyInsert(recipientID, n)
		}
	})
	if err != nil {
		r.mu.Lock()
		delete(r.feeds, recipientID)
		r.mu.Unlock()
		f.Close()
		return nil, err
	}
	return f, nil
}

// Evict tears the recipient's feed down.
func (r *Registry) Evict(recipientID string) {
	r.mu.Lock()
	f, ok := r.feeds[recipientID]
	delete(r.feeds, recipientID)
	r.mu.Unlock()
	if ok {
		f.Close()
	}
}

// Close tears down every feed.
func (r *Registry) Close() {
	r.mu.Lock()
	feeds := r.feeds
	r.feeds = make(map[string]*feed.Feed)
	r.mu.Unlock()
	for _, f := range feeds {
		f.Close()
	}
}

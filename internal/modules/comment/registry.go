package comment

import (
	"sync"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/sync/thread"
	"go.uber.org/zap"
)

// Registry holds one live thread cache per event and sort direction.
type Registry struct {
	mu            sync.Mutex
	gw            gateway.Gateway
	log           *zap.Logger
	pageSize      int
	replyPageSize int
	caches        map[string]*thread.Cache
}

func NewRegistry(gw gateway.Gateway, log *zap.Logger, pageSize, replyPageSize int) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		gw:            gw,
		log:           log,
		pageSize:      pageSize,
		replyPageSize: replyPageSize,
		caches:        make(map[string]*thread.Cache),
	}
}

// Get returns the thread cache for the event, creating it on first use.
func (r *Registry) Get(eventID string, dir gateway.Direction) *thread.Cache {
	if dir != gateway.Asc {
		dir = gateway.Desc
	}
	key := eventID + "/" + string(dir)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[key]; ok {
		return c
	}
	c := thread.New(r.gw, r.log, thread.Config{
		EventID:       eventID,
		PageSize:      r.pageSize,
		ReplyPageSize: r.replyPageSize,
		Direction:     dir,
	})
	r.caches[key] = c
	return c
}

// Evict tears down every cache for the event, both directions.
func (r *Registry) Evict(eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dir := range []gateway.Direction{gateway.Asc, gateway.Desc} {
		key := eventID + "/" + string(dir)
		if c, ok := r.caches[key]; ok {
			c.Close()
			delete(r.caches, key)
		}
	}
}

// Close tears down every cache.
func (r *Registry) Close() {
	r.mu.Lock()
	caches := r.caches
	r.caches = make(map[string]*thread.Cache)
	r.mu.Unlock()
	for _, c := range caches {
		c.Close()
	}
}

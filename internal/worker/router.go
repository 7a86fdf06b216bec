package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

// Handler processes one job and reports its outcome
type Handler interface {
	Handle(ctx context.Context, env *queue.Envelope) domain.Result
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, env *queue.Envelope) domain.Result

// Handle calls f(ctx, env)
func (f HandlerFunc) Handle(ctx context.Context, env *queue.Envelope) domain.Result {
	return f(ctx, env)
}

// Router is the dispatch table from (queue, kind) to handler. Jobs whose
// kind has no entry are dead-lettered without retries.
type Router struct {
	routes map[string]map[domain.Kind]Handler
}

// NewRouter creates an empty Router
func NewRouter() *Router {
	return &Router{routes: make(map[string]map[domain.Kind]Handler)}
}

// Handle registers h for kind on queue. It panics on duplicate registration.
func (r *Router) Handle(queueName string, kind domain.Kind, h Handler) {
	kinds, ok := r.routes[queueName]
	if !ok {
		kinds = make(map[domain.Kind]Handler)
		r.routes[queueName] = kinds
	}
	if _, exists := kinds[kind]; exists {
		panic(fmt.Sprintf("worker: duplicate handler for %s/%s", queueName, kind))
	}
	kinds[kind] = h
}

// Lookup returns the handler for kind on queue
func (r *Router) Lookup(queueName string, kind domain.Kind) (Handler, bool) {
	h, ok := r.routes[queueName][kind]
	return h, ok
}

// Queues returns the queues with at least one handler, sorted
func (r *Router) Queues() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

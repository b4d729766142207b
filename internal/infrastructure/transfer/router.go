package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pass/deposit-services/internal/domain/deposit"
)

// Router picks a transport by repository key, falling back to a default
type Router struct {
	mu       sync.RWMutex
	byKey    map[string]deposit.Transferer
	fallback deposit.Transferer
}

// NewRouter creates a router. fallback may be nil.
func NewRouter(fallback deposit.Transferer) *Router {
	return &Router{
		byKey:    make(map[string]deposit.Transferer),
		fallback: fallback,
	}
}

// Register routes repositories with key to t
func (r *Router) Register(key string, t deposit.Transferer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = t
}

// Transfer delegates to the transport registered for the repository
func (r *Router) Transfer(ctx context.Context, submission *deposit.Submission, repository *deposit.Repository) (string, error) {
	if repository == nil {
		return "", ErrIncompleteTransfer
	}
	r.mu.RLock()
	t, ok := r.byKey[repository.Key]
	if !ok {
		t = r.fallback
	}
	r.mu.RUnlock()

	if t == nil {
		return "", fmt.Errorf("%w %q", ErrNoTransport, repository.Key)
	}
	return t.Transfer(ctx, submission, repository)
}

var _ deposit.Transferer = (*Router)(nil)

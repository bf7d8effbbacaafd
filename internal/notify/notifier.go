// Package notify pushes product snapshots to any number of observers whenever
// the product collection changes.
//
// Every subscription is backed by a one-slot channel. A publish replaces an
// undelivered snapshot with the newer one, so a slow reader may skip
// intermediate states but always ends up with the latest committed state, and
// writers never wait on readers.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/abgdnv/storekeeper/internal/store"
)

// ErrClosed is returned when subscribing to a closed Notifier.
var ErrClosed = errors.New("notifier closed")

var _ store.ProductStore = (*Notifier)(nil)

// Notifier decorates a ProductStore. Mutations go through to the store and,
// once committed, the new state is published to subscribers in commit order.
type Notifier struct {
	products store.ProductStore
	logger   *slog.Logger

	// mu serializes mutations with publishing and with subscription setup.
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	all    map[*slot[[]store.Product]]struct{}
	byID   map[int64]map[*slot[*store.Product]]struct{}
}

// NewNotifier wraps products.
func NewNotifier(products store.ProductStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		products: products,
		logger:   logger.With("component", "notifier"),
		done:     make(chan struct{}),
		all:      make(map[*slot[[]store.Product]]struct{}),
		byID:     make(map[int64]map[*slot[*store.Product]]struct{}),
	}
}

// slot holds at most one undelivered value.
type slot[T any] struct {
	ch chan T
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{ch: make(chan T, 1)}
}

// offer delivers v, replacing any value the reader has not taken yet.
// Only called with Notifier.mu held, so there is a single sender.
func (s *slot[T]) offer(v T) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

// SubscribeToAllProducts returns a stream of full product lists. The current
// list is available immediately; a new one follows every committed insert,
// update or delete. The channel is closed when ctx is done or the Notifier is closed.
func (n *Notifier) SubscribeToAllProducts(ctx context.Context) (<-chan []store.Product, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	snapshot, err := n.products.GetAllProducts(ctx)
	if err != nil {
		return nil, err
	}

	s := newSlot[[]store.Product]()
	s.offer(cloneAll(snapshot))
	n.all[s] = struct{}{}

	go n.release(ctx, func() {
		delete(n.all, s)
		close(s.ch)
	})
	return s.ch, nil
}

// SubscribeToProduct returns a stream of values for a single product id. The
// current value is available immediately, nil meaning the product does not
// exist (or was deleted). The channel is closed when ctx is done or the Notifier is closed.
func (n *Notifier) SubscribeToProduct(ctx context.Context, id int64) (<-chan *store.Product, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	current, err := n.products.GetProduct(ctx, id)
	if err != nil && !errors.Is(err, serrors.ErrNotFound) {
		return nil, err
	}

	s := newSlot[*store.Product]()
	s.offer(cloneOne(current))
	subs, ok := n.byID[id]
	if !ok {
		subs = make(map[*slot[*store.Product]]struct{})
		n.byID[id] = subs
	}
	subs[s] = struct{}{}

	go n.release(ctx, func() {
		delete(subs, s)
		if len(subs) == 0 {
			delete(n.byID, id)
		}
		close(s.ch)
	})
	return s.ch, nil
}

// release runs unsubscribe once ctx is done, unless Close got there first.
func (n *Notifier) release(ctx context.Context, unsubscribe func()) {
	select {
	case <-ctx.Done():
	case <-n.done:
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	unsubscribe()
}

// Subscribers returns the number of live subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := len(n.all)
	for _, subs := range n.byID {
		count += len(subs)
	}
	return count
}

// Close ends every subscription. Mutations keep working; they just have no audience.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	close(n.done)
	for s := range n.all {
		close(s.ch)
	}
	for _, subs := range n.byID {
		for s := range subs {
			close(s.ch)
		}
	}
	n.all = nil
	n.byID = nil
}

// InsertProduct inserts through to the store and publishes the new state.
func (n *Notifier) InsertProduct(ctx context.Context, product store.Product) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id, err := n.products.InsertProduct(ctx, product)
	if err != nil {
		return 0, err
	}
	n.publish(ctx, id)
	return id, nil
}

// UpdateProduct updates through to the store and publishes the new state.
func (n *Notifier) UpdateProduct(ctx context.Context, id int64, product store.Product) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.products.UpdateProduct(ctx, id, product); err != nil {
		return err
	}
	n.publish(ctx, id)
	return nil
}

// DeleteProduct deletes through to the store and publishes the new state.
func (n *Notifier) DeleteProduct(ctx context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.products.DeleteProduct(ctx, id); err != nil {
		return err
	}
	n.publish(ctx, id)
	return nil
}

func (n *Notifier) GetProduct(ctx context.Context, id int64) (*store.Product, error) {
	return n.products.GetProduct(ctx, id)
}

func (n *Notifier) GetAllProducts(ctx context.Context) ([]store.Product, error) {
	return n.products.GetAllProducts(ctx)
}

func (n *Notifier) CountProducts(ctx context.Context) (int, error) {
	return n.products.CountProducts(ctx)
}

// publish reads back the committed state and hands it to subscribers.
// The write is already durable, so read-back failures are logged, not returned.
// Must be called with n.mu held: the read-back stays inside the lock so
// snapshots go out in commit order. New subscribers and other writers wait
// for it, which costs a full-list read per mutation while list subscribers exist.
// TODO: publish per-product deltas to list subscribers once lists outgrow a single read.
func (n *Notifier) publish(ctx context.Context, id int64) {
	if n.closed {
		return
	}
	// The caller's context may be cancelled right after the write; the read-back must still happen.
	ctx = context.WithoutCancel(ctx)

	if len(n.all) > 0 {
		snapshot, err := n.products.GetAllProducts(ctx)
		if err != nil {
			n.logger.ErrorContext(ctx, "Failed to read product snapshot after mutation", "ID", id, "error", err)
		} else {
			for s := range n.all {
				s.offer(cloneAll(snapshot))
			}
		}
	}

	subs := n.byID[id]
	if len(subs) == 0 {
		return
	}
	current, err := n.products.GetProduct(ctx, id)
	if err != nil && !errors.Is(err, serrors.ErrNotFound) {
		n.logger.ErrorContext(ctx, "Failed to read product after mutation", "ID", id, "error", err)
		return
	}
	for s := range subs {
		s.offer(cloneOne(current))
	}
}

func cloneAll(list []store.Product) []store.Product {
	out := make([]store.Product, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}

func cloneOne(p *store.Product) *store.Product {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &c
}

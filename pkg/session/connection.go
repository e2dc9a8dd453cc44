package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/commit"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/index"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

// Listener receives ledger update callbacks: (event, data).
type Listener func(event events.EventType, data *events.Event)

// ListenerKey identifies one registration.
type ListenerKey struct {
	Network string
	Ledger  string
	Key     string
}

// DialFunc opens a Store against one remote server endpoint.
type DialFunc func(ctx context.Context, server string) (storage.Store, error)

// Connection owns the shared engine state: the store, codec, node cache,
// event broker, per-ledger sessions, and registered listeners. Multiple
// connections in one process are fully independent.
type Connection struct {
	opts   config.Options
	store  storage.Store
	codec  serde.Serde
	cache  *index.Resolver
	broker *events.Broker
	writer *commit.Writer
	reader *commit.Reader
	logger zerolog.Logger

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners map[ListenerKey]Listener
	closed    bool

	dispatchSub events.Subscriber
	wg          sync.WaitGroup
}

// Connect builds a connection from options. With Servers configured, the
// dial function is retried with exponential backoff per server; when no
// server answers before the backoff ceiling the connect fails with
// connection-error. Without servers the configured local backend opens
// directly.
func Connect(ctx context.Context, opts config.Options, dial DialFunc) (*Connection, error) {
	if err := opts.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindConnection, "invalid options", err)
	}

	store, err := openStore(ctx, opts, dial)
	if err != nil {
		return nil, err
	}

	codec := serde.NewJSON()
	cache, err := index.NewResolver(store, codec, opts.Memory)
	if err != nil {
		store.Close()
		return nil, err
	}

	c := &Connection{
		opts:      opts,
		store:     store,
		codec:     codec,
		cache:     cache,
		broker:    events.NewBroker(),
		writer:    commit.NewWriter(store, codec),
		reader:    commit.NewReader(store, codec),
		logger:    log.WithComponent("connection"),
		sessions:  make(map[string]*Session),
		listeners: make(map[ListenerKey]Listener),
	}
	c.broker.Start()
	c.dispatchSub = c.broker.Subscribe()
	c.wg.Add(1)
	go c.dispatch()
	return c, nil
}

func openStore(ctx context.Context, opts config.Options, dial DialFunc) (storage.Store, error) {
	if len(opts.Servers) > 0 {
		if dial == nil {
			return nil, errs.E(errs.KindConnection, "servers configured but no dial function")
		}
		var store storage.Store
		for _, server := range opts.Servers {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 30 * time.Second
			err := backoff.Retry(func() error {
				s, err := dial(ctx, server)
				if err != nil {
					return err
				}
				store = s
				return nil
			}, backoff.WithContext(bo, ctx))
			if err == nil {
				return store, nil
			}
		}
		return nil, errs.E(errs.KindConnection, "no healthy server before backoff ceiling")
	}

	switch opts.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemStore(), nil
	case config.BackendFile:
		return storage.NewFileStore(opts.StoragePath)
	case config.BackendBolt:
		return storage.NewBoltStore(opts.StoragePath)
	default:
		return nil, errs.Ef(errs.KindConnection, "unknown storage backend %q", opts.StorageBackend)
	}
}

// Options returns the connection's resolved options.
func (c *Connection) Options() config.Options {
	return c.opts
}

// Store returns the underlying blob store.
func (c *Connection) Store() storage.Store {
	return c.store
}

// Reader returns the commit reader (also the db.RootLoader).
func (c *Connection) Reader() *commit.Reader {
	return c.reader
}

// RegisterListener installs a callback for one ledger's updates. The key
// makes the registration addressable for removal.
func (c *Connection) RegisterListener(network, ledger, key string, fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[ListenerKey{Network: network, Ledger: ledger, Key: key}] = fn
}

// RemoveListener drops a registration.
func (c *Connection) RemoveListener(network, ledger, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, ListenerKey{Network: network, Ledger: ledger, Key: key})
}

// dispatch fans broker events out to matching listeners, preserving
// per-ledger commit order: one goroutine drains the subscription.
func (c *Connection) dispatch() {
	defer c.wg.Done()
	for ev := range c.dispatchSub {
		c.mu.RLock()
		var targets []Listener
		for key, fn := range c.listeners {
			if key.Network == ev.Network && key.Ledger == ev.Ledger {
				targets = append(targets, fn)
			}
		}
		c.mu.RUnlock()
		for _, fn := range targets {
			fn(ev.Type, ev)
		}
	}
}

// Session returns the (cached) session for one ledger, creating it from
// the latest committed root (or genesis for a new ledger) on first use.
func (c *Connection) Session(ctx context.Context, network, ledger string) (*Session, error) {
	if network == "" {
		network = c.opts.DefaultNetwork
	}
	key := network + "/" + ledger

	c.mu.RLock()
	if s, ok := c.sessions[key]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errs.E(errs.KindConnection, "connection closed")
	}

	s, err := newSession(ctx, c, network, ledger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[key]; ok {
		return existing, nil
	}
	c.sessions[key] = s
	return s, nil
}

// Close tears the connection down: sessions, indexers, broker, cache,
// and store. Background services release their references.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = map[string]*Session{}
	c.listeners = map[ListenerKey]Listener{}
	c.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	c.broker.Unsubscribe(c.dispatchSub)
	c.broker.Stop()
	c.wg.Wait()
	c.cache.Release()
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

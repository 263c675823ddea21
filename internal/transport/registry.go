package transport

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// The process-wide registry tracks every active client so the host can flush
// and close all of them at shutdown, including tracers it never kept a handle
// to (the ambient API's lazily configured default).
var (
	regMu     sync.Mutex
	instances []*Client
)

func register(c *Client) {
	regMu.Lock()
	instances = append(instances, c)
	regMu.Unlock()
}

func unregister(c *Client) {
	regMu.Lock()
	for i, inst := range instances {
		if inst == c {
			instances = append(instances[:i], instances[i+1:]...)
			break
		}
	}
	regMu.Unlock()
}

// CloseAll closes every registered client concurrently, each bounded by ctx.
// A misbehaving client delays only its own goroutine; the first error is
// returned after all closes have finished.
func CloseAll(ctx context.Context) error {
	regMu.Lock()
	clients := make([]*Client, len(instances))
	copy(clients, instances)
	regMu.Unlock()

	var g errgroup.Group
	for _, c := range clients {
		c := c
		g.Go(func() error {
			return c.Close(ctx)
		})
	}
	return g.Wait()
}

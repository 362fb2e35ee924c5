package sync

import (
	"github.com/matheus3301/chansync/internal/gate"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
	"go.uber.org/zap"
)

// SyncChangelog brings the window up to date with edits, deletions and
// new messages since the last checkpoint. It shares the forward gate with
// LoadNext. If no initial load has succeeded yet it starts one instead.
//
// Each phase fetches at most MaxChangelogPages pages. Past that the
// session is reloaded from its starting point.
func (c *Coordinator) SyncChangelog() *Op {
	c.mu.Lock()
	if !c.state.InitSucceeded {
		anchor := c.anchor
		c.mu.Unlock()
		return c.LoadInitial(anchor, nil)
	}
	c.mu.Unlock()

	ticket, ok := c.locks.Next.TryAcquire()
	if !ok {
		return c.drop("changelog")
	}
	op := newOp()

	c.mu.Lock()
	gen := c.generation
	c.startLoadingLocked()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticket.Release()
		c.reconcile(gen, ticket, op)
	}()
	return op
}

func (c *Coordinator) reconcile(gen uint64, ticket *gate.Ticket, op *Op) {
	for pages := 1; ; pages++ {
		c.mu.Lock()
		cursor := remote.ChangelogCursor{Token: c.state.Token, Timestamp: c.state.LastUpdated}
		c.mu.Unlock()

		cl, err := c.store.FetchChangelog(c.ctx, cursor)
		if err == nil && cl == nil {
			err = remote.ErrEmptyResponse
		}
		err = wrapTransport("fetch changelog", err)
		c.metrics.observeFetch("changelog", err)

		c.mu.Lock()
		if c.staleLocked(gen, op, "changelog") {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.failLocked(op, "changelog", err)
			c.mu.Unlock()
			return
		}
		c.applyChangelogLocked(cl)
		c.mu.Unlock()

		if !cl.HasMore {
			break
		}
		if pages >= c.cfg.MaxChangelogPages {
			c.overflow(gen, ticket, op, pages)
			return
		}
	}

	size := c.cfg.ChangelogPageSize
	for pages := 1; ; pages++ {
		c.mu.Lock()
		q := remote.FetchQuery{Anchor: c.state.LastUpdated, Next: size}
		c.mu.Unlock()

		msgs, tail, err := c.fetch("changelog_added", q)

		c.mu.Lock()
		if c.staleLocked(gen, op, "changelog_added") {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.failLocked(op, "changelog_added", err)
			c.mu.Unlock()
			return
		}
		msgs = message.Normalize(msgs)
		if len(msgs) < size {
			batch := c.applyForwardLocked(msgs, tail, size)
			if len(batch) > 0 {
				c.publishLocked(KindChangelogAdded, c.batchLocked(batch))
			}
			c.finishLocked(op, nil)
			c.mu.Unlock()
			return
		}

		c.window.Upsert(msgs)
		if !c.window.HasNext {
			c.cache.LoadNext(msgs)
		}
		c.advanceLocked(msgs, tail, false)
		page := c.batchLocked(msgs)
		page.IsLive = false
		c.publishLocked(KindChangelogAdded, page)
		c.mu.Unlock()

		if pages >= c.cfg.MaxChangelogPages {
			c.overflow(gen, ticket, op, pages)
			return
		}
	}
}

func (c *Coordinator) applyChangelogLocked(cl *remote.Changelog) {
	c.window.Apply(cl.Updated, cl.DeletedIDs)
	c.cache.ApplyChangelog(cl.Updated, cl.DeletedIDs)
	if cl.NextToken != "" {
		c.state.Token = cl.NextToken
	}
	c.metrics.observeChangelogPage()
	if len(cl.Updated) > 0 {
		c.publishLocked(KindChangelogUpdated, c.batchLocked(cl.Updated))
	}
	if len(cl.DeletedIDs) > 0 {
		c.publishLocked(KindChangelogDeleted, Deleted{Channel: c.channel, IDs: cl.DeletedIDs})
	}
}

// overflow reports the failure, frees the forward gate and reloads the
// session from its starting point.
func (c *Coordinator) overflow(gen uint64, ticket *gate.Ticket, op *Op, pages int) {
	c.mu.Lock()
	if c.staleLocked(gen, op, "changelog") {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("changelog did not converge, reloading", zap.Int("pages", pages))
	c.failLocked(op, "changelog", ErrChangelogOverflow)
	anchor := c.anchor
	c.mu.Unlock()

	ticket.Release()
	c.LoadInitial(anchor, nil)
}

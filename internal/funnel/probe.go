package funnel

import (
	"context"
	"errors"
	"time"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/calendar"
)

// launchProbe starts the probe for ticket in the background, cancelling any older
// probe of the same session. A ticket older than the registered probe is superseded
// and never started. The returned channel closes when the probe settled.
func (c *Controller) launchProbe(id string, ticket calendar.Ticket, ref string, loc *time.Location) <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	prev, ok := c.inFlight[id]
	if ok && prev.ticket.Generation >= ticket.Generation {
		c.mu.Unlock()
		c.logger.Debug("probe superseded before launch", "session_id", id, "month", ticket.Month.String())
		close(done)
		return done
	}
	if ok {
		prev.cancel()
	}
	ctx, cancel := context.WithTimeout(c.root, c.cfg.ProbeTimeout)
	c.inFlight[id] = probeHandle{ticket: ticket, cancel: cancel, done: done}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer c.forgetProbe(id, ticket)
		defer cancel()

		set, err := c.gate.Probe(ctx, ticket, ref, loc)
		if err != nil {
			c.failProbe(ctx, id, ticket, err)
			return
		}
		c.settleProbe(id, ticket, set)
	}()
	return done
}

func (c *Controller) settleProbe(id string, ticket calendar.Ticket, set availability.BookableSet) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	s, err := c.store.Update(ctx, id, func(s *Session) error {
		return c.gate.Publish(&s.Calendar, ticket, set)
	})
	var stale *calendar.StaleProbeError
	switch {
	case err == nil:
		c.broadcaster.Publish(s)
	case errors.As(err, &stale), errors.Is(err, ErrSessionNotFound):
	default:
		c.logger.Error("failed to publish probe result", "session_id", id, "month", ticket.Month.String(), "error", err)
	}
}

// failProbe leaves the month idle with a notice when the probe timed out or failed.
// Probes cancelled by navigation or Close are dropped silently.
func (c *Controller) failProbe(probeCtx context.Context, id string, ticket calendar.Ticket, err error) {
	if errors.Is(probeCtx.Err(), context.Canceled) {
		c.logger.Debug("probe cancelled", "session_id", id, "month", ticket.Month.String())
		return
	}
	c.logger.Warn("availability probe failed", "session_id", id, "month", ticket.Month.String(), "error", err)

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	s, uerr := c.store.Update(ctx, id, func(s *Session) error {
		if ferr := s.Calendar.Fail(ticket); ferr != nil {
			return ferr
		}
		s.Notice = &Notice{Kind: KindNetwork, Message: MsgAvailabilityFailed, At: c.now().UTC()}
		return nil
	})
	if uerr == nil {
		c.broadcaster.Publish(s)
	}
}

func (c *Controller) cancelProbe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.inFlight[id]; ok {
		h.cancel()
		delete(c.inFlight, id)
	}
}

func (c *Controller) forgetProbe(id string, ticket calendar.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.inFlight[id]; ok && h.ticket == ticket {
		delete(c.inFlight, id)
	}
}

// probing reports whether a probe for id is in flight.
func (c *Controller) probing(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[id]
	return ok
}

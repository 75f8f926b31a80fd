package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/stream"
	"greeks-dashboard/pkg/utils"
)

// DefaultPollInterval is how often a live series is refreshed.
const DefaultPollInterval = time.Minute

// pollSeq numbers loads across all pollers so a restarted poller never
// publishes below a topic's previous snapshots.
var pollSeq atomic.Uint64

// Poller reloads one request on an interval while its trading day is live and
// publishes each result to a hub. Loads may overlap; a result is published
// only if no newer load has already been published.
type Poller struct {
	loader   Loader
	hub      *stream.Hub
	req      Request
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	published uint64
	wg        sync.WaitGroup
}

// NewPoller creates a poller publishing req snapshots to hub.
func NewPoller(loader Loader, hub *stream.Hub, req Request, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		loader:   loader,
		hub:      hub,
		req:      req,
		interval: interval,
		logger:   logger.With().Str("topic", req.Topic()).Logger(),
		now:      time.Now,
	}
}

// Topic is the hub topic snapshots are published on.
func (p *Poller) Topic() string { return p.req.Topic() }

// Run polls until ctx is done. For a day that is not live it loads once and
// returns.
func (p *Poller) Run(ctx context.Context) {
	defer p.wg.Wait()

	p.Refresh(ctx)
	if !utils.IsLiveSession(p.req.Query.Date, p.now()) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.Refresh(ctx)
			}()
			if !utils.IsLiveSession(p.req.Query.Date, p.now()) {
				p.logger.Info().Msg("Session closed, stopping poller")
				return
			}
		}
	}
}

// Refresh loads the series once and publishes it unless a newer result won.
// It reports whether the snapshot was published.
func (p *Poller) Refresh(ctx context.Context) (stream.Snapshot, bool) {
	seq := pollSeq.Add(1)
	series, err := p.loader.Load(ctx, p.req)
	if ctx.Err() != nil {
		return stream.Snapshot{}, false
	}

	snap := stream.Snapshot{Topic: p.Topic(), Seq: seq, At: p.now()}
	if err != nil {
		snap.Error = err.Error()
		p.logger.Warn().Err(err).Uint64("seq", seq).Msg("Poll failed")
	} else {
		snap.Series = series
	}

	p.mu.Lock()
	if seq <= p.published {
		p.mu.Unlock()
		p.logger.Debug().Uint64("seq", seq).Msg("Discarding stale poll result")
		return snap, false
	}
	p.published = seq
	p.mu.Unlock()

	p.hub.Publish(snap)
	return snap, true
}

// Streams runs one poller per topic while the topic has subscribers.
type Streams struct {
	loader   Loader
	hub      *stream.Hub
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	running map[string]*runningPoller
}

type runningPoller struct {
	cancel context.CancelFunc
	refs   int
}

// NewStreams creates the subscription manager. hub must be started.
func NewStreams(loader Loader, hub *stream.Hub, interval time.Duration, logger zerolog.Logger) *Streams {
	return &Streams{
		loader:   loader,
		hub:      hub,
		interval: interval,
		logger:   logger,
		running:  make(map[string]*runningPoller),
	}
}

// Subscribe attaches to req's topic, starting its poller if needed. The
// returned function releases the subscription and stops the poller once the
// topic has no subscribers. Only ctx values reach the poller.
func (s *Streams) Subscribe(ctx context.Context, req Request) (*stream.Subscriber, func()) {
	topic := req.Topic()
	sub := s.hub.Subscribe(topic)

	s.mu.Lock()
	rp, ok := s.running[topic]
	if !ok {
		pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		rp = &runningPoller{cancel: cancel}
		s.running[topic] = rp
		p := NewPoller(s.loader, s.hub, req, s.interval, s.logger)
		go p.Run(pctx)
	}
	rp.refs++
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.hub.Unsubscribe(sub)
			s.mu.Lock()
			defer s.mu.Unlock()
			rp.refs--
			if rp.refs == 0 {
				rp.cancel()
				delete(s.running, topic)
			}
		})
	}
	return sub, release
}

// Active returns the number of running pollers.
func (s *Streams) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Close stops every poller.
func (s *Streams) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, rp := range s.running {
		rp.cancel()
		delete(s.running, topic)
	}
}

// Latest returns the most recent published series for req, if any.
func (s *Streams) Latest(req Request) (*models.Series, bool) {
	snap, ok := s.hub.Latest(req.Topic())
	if !ok || snap.Series == nil {
		return nil, false
	}
	return snap.Series, true
}

package identity

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Identity is the pair of attributes a single request presents to an
// external surface.
type Identity struct {
	UserAgent string
	Proxy     *Proxy
}

// Pool hands out identities and rotates them on demand. Proxies that
// cause failures are quarantined for the lifetime of the pool; the
// directory's periodic refresh is what brings fresh endpoints in. User
// agents are cycled randomly so consecutive identities never repeat.
type Pool struct {
	mu sync.Mutex

	agents    []string
	agentIdx  int
	directory *ProxyDirectory

	quarantined map[string]struct{}
	current     Identity

	rng *rand.Rand
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDirectory attaches a proxy directory. Without one the pool rotates
// user agents only and all requests go direct.
func WithDirectory(d *ProxyDirectory) PoolOption {
	return func(p *Pool) { p.directory = d }
}

// WithAgents replaces the built-in user agent catalogue.
func WithAgents(agents []string) PoolOption {
	return func(p *Pool) {
		if len(agents) > 0 {
			p.agents = agents
		}
	}
}

// WithPoolRandSource seeds the rotation order, for deterministic tests.
func WithPoolRandSource(src rand.Source) PoolOption {
	return func(p *Pool) { p.rng = rand.New(src) }
}

// NewPool builds a pool over the built-in user agent catalogue.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		agents:      UserAgents(),
		quarantined: make(map[string]struct{}),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rng.Shuffle(len(p.agents), func(i, j int) {
		p.agents[i], p.agents[j] = p.agents[j], p.agents[i]
	})
	p.current = Identity{UserAgent: p.agents[0]}
	return p
}

// Current returns the identity in effect for the next request.
func (p *Pool) Current() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Rotate moves to a fresh identity: the next user agent in the shuffled
// cycle and, when a directory is attached, a non-quarantined proxy.
func (p *Pool) Rotate(ctx context.Context) Identity {
	p.mu.Lock()
	p.agentIdx = (p.agentIdx + 1) % len(p.agents)
	next := Identity{UserAgent: p.agents[p.agentIdx]}
	p.mu.Unlock()

	if p.directory != nil {
		if proxy := p.pickProxy(ctx); proxy != nil {
			next.Proxy = proxy
		}
	}

	p.mu.Lock()
	p.current = next
	p.mu.Unlock()

	zap.S().Debugw("identity rotated",
		"user_agent", next.UserAgent,
		"proxy", proxyLabel(next.Proxy))
	return next
}

// MarkFailed quarantines the identity's proxy. A failed endpoint is
// never reselected by this pool. Identities without a proxy have
// nothing to mark.
func (p *Pool) MarkFailed(id Identity) {
	if id.Proxy == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quarantined[id.Proxy.String()] = struct{}{}
}

// pickProxy selects a random non-quarantined proxy, or nil when none is
// available and the caller should go direct.
func (p *Pool) pickProxy(ctx context.Context) *Proxy {
	proxies, err := p.directory.Proxies(ctx)
	if err != nil {
		zap.S().Warnw("proxy refresh failed, going direct", "error", err)
		return nil
	}

	p.mu.Lock()
	eligible := proxies[:0]
	for _, pr := range proxies {
		if _, bad := p.quarantined[pr.String()]; bad {
			continue
		}
		eligible = append(eligible, pr)
	}
	p.mu.Unlock()

	if len(eligible) == 0 {
		return nil
	}
	picked := eligible[p.rng.Intn(len(eligible))]
	return &picked
}

func proxyLabel(p *Proxy) string {
	if p == nil {
		return "direct"
	}
	return p.String()
}

// Package egress decides whether the sandbox's network broker may open
// an outbound connection to a given host (§4.9): classify the
// destination's address scope, consult the configured policy, and for
// scopes that require a human in the loop, ask a Confirmer and cache
// the answer for the rest of the invocation.
package egress

import (
	"context"
	"net"
	"sync"

	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// Scope classifies a resolved destination address (§4.9).
type Scope string

// Supported scopes, ordered from most to least restricted by default.
const (
	ScopeLoopback    Scope = "loopback"
	ScopeLinkLocal   Scope = "link-local"
	ScopePrivateLAN  Scope = "private-lan"
	ScopePublic      Scope = "public"
	ScopeUnresolved  Scope = "unresolved"
)

// Decision is the outcome of evaluating one hostport against policy.
type Decision string

// Supported decisions.
const (
	DecisionAllow  Decision = "allow"
	DecisionDeny   Decision = "deny"
	DecisionPrompt Decision = "prompt"
)

// ClassifyHost reports host's Scope without performing a DNS lookup for
// literal IP addresses; hostnames are resolved via net.LookupIP.
func ClassifyHost(ctx context.Context, host string) Scope {
	if ip := net.ParseIP(host); ip != nil {
		return classifyIP(ip)
	}

	var resolver net.Resolver
	ips, err := resolver.LookupIP(ctx, "ip", host)
	if err != nil || len(ips) == 0 {
		return ScopeUnresolved
	}
	// A hostname that resolves to any non-public address is treated at
	// its most restricted scope: a DNS answer is attacker-influenced
	// input and must not be used to smuggle a private-network request
	// behind a public-looking name (classic DNS-rebinding SSRF).
	worst := ScopePublic
	for _, ip := range ips {
		if s := classifyIP(ip); scopeRank(s) < scopeRank(worst) {
			worst = s
		}
	}
	return worst
}

// scopeRank orders scopes from most restricted (lowest) to least.
func scopeRank(s Scope) int {
	switch s {
	case ScopeLoopback:
		return 0
	case ScopeLinkLocal:
		return 1
	case ScopePrivateLAN:
		return 2
	default:
		return 3
	}
}

func classifyIP(ip net.IP) Scope {
	switch {
	case ip.IsLoopback():
		return ScopeLoopback
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return ScopeLinkLocal
	case ip.IsPrivate():
		return ScopePrivateLAN
	default:
		return ScopePublic
	}
}

// Confirmer asks a human (or whatever sits behind the gateway's
// confirmation channel) to approve or deny one outbound connection.
// Implemented by pkg/confirm.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Session holds a Policy's decision cache. The gateway creates one per
// `code` invocation, so a prompt answered once is not re-asked for the
// rest of that invocation (§4.9).
type Session struct {
	mu       sync.Mutex
	decided  map[string]Decision
}

// NewSession constructs an empty decision cache.
func NewSession() *Session {
	return &Session{decided: make(map[string]Decision)}
}

func (s *Session) get(hostport string) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decided[hostport]
	return d, ok
}

func (s *Session) put(hostport string, d Decision) {
	s.mu.Lock()
	s.decided[hostport] = d
	s.mu.Unlock()
}

// Snapshot returns a copy of every hostport decided so far in this
// session. The gateway does not call it; the `code` result does not
// include these decisions.
func (s *Session) Snapshot() map[string]Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Decision, len(s.decided))
	for k, v := range s.decided {
		out[k] = v
	}
	return out
}

// Policy evaluates outbound connection attempts against gwconfig's
// EgressConfig, prompting through a Confirmer for scopes the config
// marks as interactive.
type Policy struct {
	cfg       gwconfig.EgressConfig
	confirmer Confirmer
}

// New constructs a Policy. confirmer may be nil, in which case any
// scope requiring a prompt is denied outright (fail closed, never
// fail open on a missing confirmation channel).
func New(cfg gwconfig.EgressConfig, confirmer Confirmer) *Policy {
	return &Policy{cfg: cfg, confirmer: confirmer}
}

// Decide classifies host, consults the session cache, and either
// returns a cached verdict, allows/denies outright per config, or
// prompts via the Confirmer and caches the result.
func (p *Policy) Decide(ctx context.Context, session *Session, host, port string) (Decision, error) {
	hostport := net.JoinHostPort(host, port)
	if session != nil {
		if cached, ok := session.get(hostport); ok {
			return cached, nil
		}
	}

	scope := ClassifyHost(ctx, host)
	decision, prompt := p.decideScope(scope)
	if decision != DecisionPrompt {
		if session != nil {
			session.put(hostport, decision)
		}
		return decision, nil
	}

	if p.confirmer == nil {
		if session != nil {
			session.put(hostport, DecisionDeny)
		}
		return DecisionDeny, nil
	}

	allowed, err := p.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.KindCancelled, err, "confirming egress to %s", hostport)
	}
	decision = DecisionDeny
	if allowed {
		decision = DecisionAllow
	}
	if session != nil {
		session.put(hostport, decision)
	}
	return decision, nil
}

// decideScope maps a Scope to a Decision under cfg, returning the
// human-facing prompt text when the scope requires confirmation.
func (p *Policy) decideScope(scope Scope) (Decision, string) {
	switch scope {
	case ScopeLoopback:
		if p.cfg.AllowLoopback {
			return DecisionAllow, ""
		}
		return DecisionDeny, ""
	case ScopeLinkLocal:
		if p.cfg.PromptLinkLocal {
			return DecisionPrompt, "allow sandbox script to reach a link-local address?"
		}
		return DecisionDeny, ""
	case ScopePrivateLAN:
		if p.cfg.PromptPrivateLAN {
			return DecisionPrompt, "allow sandbox script to reach a private network address?"
		}
		return DecisionDeny, ""
	case ScopeUnresolved:
		return DecisionDeny, ""
	default: // ScopePublic
		if p.cfg.AllowPublic {
			return DecisionAllow, ""
		}
		return DecisionDeny, ""
	}
}

// SandboxBroker adapts a Policy bound to one Session to
// sandbox.NetworkBroker's Allow(ctx, host, port) (bool, error) shape, so
// the gateway server can hand the sandbox a network gate without the
// sandbox package importing egress (avoiding an import cycle: egress
// has no reason to know about the sandbox, only the reverse).
type SandboxBroker struct {
	Policy  *Policy
	Session *Session
}

// Allow decides host:port via the wrapped Policy and Session and
// collapses the result to the boolean the sandbox's fetch binding acts
// on; DecisionPrompt never reaches here since Decide always resolves it
// to Allow or Deny before returning.
func (b SandboxBroker) Allow(ctx context.Context, host, port string) (bool, error) {
	decision, err := b.Policy.Decide(ctx, b.Session, host, port)
	if err != nil {
		return false, err
	}
	return decision == DecisionAllow, nil
}

// SplitHostPort is a small convenience wrapper the sandbox network
// binding uses to tolerate a bare host with no port, defaulting to 443.
func SplitHostPort(target string) (host, port string, err error) {
	if host, port, err = net.SplitHostPort(target); err == nil {
		return host, port, nil
	}
	return target, "443", nil
}

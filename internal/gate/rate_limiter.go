package gate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
)

// clientLimiter is one client's rate.Limiter plus the last time it was
// touched, so the TTL sweep can evict idle clients without waiting on a
// full-table client count.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter enforces global, per-client, and per-tool request budgets in
// that order, ported from MCPRateLimiter.check_rate_limit. A whitelisted
// client bypasses every tier. silent_mode scales only the per-client
// budget by SilentModeMultiplier, and only when that client's limiter is
// created; per-tool budgets are never scaled.
type RateLimiter struct {
	cfg config.GateRateConfig

	global *rate.Limiter

	mu      sync.Mutex
	clients map[string]*clientLimiter

	tools map[string]*rate.Limiter

	whitelist map[string]bool

	stopCleanup chan struct{}
}

// NewRateLimiter builds a RateLimiter from Gate rate config and starts its
// TTL-sweep goroutine if the config enables rate limiting.
func NewRateLimiter(cfg config.GateRateConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:         cfg,
		clients:     make(map[string]*clientLimiter),
		tools:       make(map[string]*rate.Limiter),
		whitelist:   make(map[string]bool, len(cfg.WhitelistClients)),
		stopCleanup: make(chan struct{}),
	}
	if cfg.Enabled {
		rl.global = rate.NewLimiter(perMinute(cfg.GlobalRPM), cfg.GlobalBurst)
		for tool, rpm := range cfg.PerToolRPM {
			burst := cfg.PerToolBurst[tool]
			if burst < 1 {
				burst = 1
			}
			rl.tools[tool] = rate.NewLimiter(perMinute(rpm), burst)
		}
	}
	for _, c := range cfg.WhitelistClients {
		rl.whitelist[c] = true
	}

	if cfg.Enabled && cfg.ClientTTL > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Close stops the background TTL-sweep goroutine.
func (rl *RateLimiter) Close() {
	close(rl.stopCleanup)
}

// perMinute converts a requests-per-minute budget into rate.Limit,
// matching the teacher's NewRateLimiter(reqPerSec, burst) conversion
// generalized from per-second to per-minute since this spec's tool budgets
// are expressed per minute.
func perMinute(rpm float64) rate.Limit {
	if rpm <= 0 {
		return rate.Inf
	}
	return rate.Limit(rpm / 60.0)
}

// Allow runs a request for clientID/toolName through the global, then
// per-client, then per-tool limiter, in that order, short-circuiting on
// the first exhausted tier. A whitelisted client always passes. silentMode
// applies SilentModeMultiplier to the per-client budget only when this call
// creates the client's limiter; an existing client limiter is reused with
// the budget it was created with, whatever silentMode is, and the per-tool
// limiters are never scaled.
func (rl *RateLimiter) Allow(clientID, toolName string, silentMode bool) error {
	if !rl.cfg.Enabled {
		return nil
	}
	if clientID == "" {
		clientID = "anonymous"
	}
	if rl.whitelist[clientID] {
		return nil
	}

	if rl.global != nil && !rl.global.Allow() {
		return apperr.New(apperr.KindRateLimited, "global rate limit exceeded")
	}

	multiplier := 1.0
	if silentMode {
		multiplier = rl.cfg.SilentModeMultiplier
	}

	client := rl.getOrCreateClientLimiter(clientID, multiplier)
	if !client.Allow() {
		return apperr.New(apperr.KindRateLimited, "per-client rate limit exceeded")
	}

	if toolLimiter, ok := rl.tools[toolName]; ok {
		if !toolLimiter.Allow() {
			return apperr.New(apperr.KindRateLimited, "per-tool rate limit exceeded")
		}
	}

	return nil
}

func (rl *RateLimiter) getOrCreateClientLimiter(clientID string, multiplier float64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if existing, ok := rl.clients[clientID]; ok {
		existing.lastUsed = time.Now()
		return existing.limiter
	}

	rpm := rl.cfg.PerClientRPM * multiplier
	burst := int(float64(rl.cfg.PerClientBurst) * multiplier)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(perMinute(rpm), burst)
	rl.clients[clientID] = &clientLimiter{limiter: limiter, lastUsed: time.Now()}
	return limiter
}

// ResetClient drops a client's limiter so its next request starts with a
// fresh burst allowance, mirroring reset_client_limits.
func (rl *RateLimiter) ResetClient(clientID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, clientID)
}

// cleanupLoop evicts client limiters idle longer than ClientTTL on
// CleanupInterval, ported from the cleanup task MCPRateLimiter::new spawns.
func (rl *RateLimiter) cleanupLoop() {
	interval := rl.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.sweepExpiredClients()
		}
	}
}

func (rl *RateLimiter) sweepExpiredClients() {
	cutoff := time.Now().Add(-rl.cfg.ClientTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, c := range rl.clients {
		if c.lastUsed.Before(cutoff) {
			delete(rl.clients, id)
		}
	}
}

// ClientCount reports how many per-client limiters are currently tracked,
// mirroring get_client_limiter_count.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Connections idle for longer than this are closed by CleanupIdleConnections.
	idleConnectionTTL = 10 * time.Minute
	// A cached client is health-checked at most this often.
	healthCheckInterval = 30 * time.Second
)

type pooledClient struct {
	client      Client
	lastUsed    time.Time
	lastChecked time.Time
}

// ClientPool caches one Client per configuration so warm serverless invocations
// reuse the HTTP transport and the *sql.DB.
type ClientPool struct {
	mu      sync.Mutex
	clients map[string]*pooledClient
	factory func(DatabaseConfig, logrus.FieldLogger) (Client, error)

	checkEvery time.Duration
	now        func() time.Time
}

func NewClientPool() *ClientPool {
	return &ClientPool{
		clients:    make(map[string]*pooledClient),
		factory:    newClient,
		checkEvery: healthCheckInterval,
		now:        time.Now,
	}
}

var globalPool = NewClientPool()

// Get returns the cached client for cfg and marks it used. A client whose last
// health check is older than the check interval is checked again and recreated
// when the check fails.
func (p *ClientPool) Get(cfg DatabaseConfig, log logrus.FieldLogger) (Client, error) {
	key := configKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if pc, ok := p.clients[key]; ok {
		if now.Sub(pc.lastChecked) < p.checkEvery {
			pc.lastUsed = now
			return pc.client, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := pc.client.HealthCheck(ctx)
		cancel()
		if err == nil {
			pc.lastUsed, pc.lastChecked = now, now
			log.Debug("Reusing existing backend client")
			return pc.client, nil
		}
		log.WithError(err).Warn("Backend health check failed, recreating client")
		pc.client.Close()
		delete(p.clients, key)
	}

	log.Debug("Creating new backend client")
	c, err := p.factory(cfg, log)
	if err != nil {
		return nil, err
	}
	p.clients[key] = &pooledClient{client: c, lastUsed: now, lastChecked: now}
	return c, nil
}

// CleanupIdleConnections closes clients not used within the idle TTL.
func (p *ClientPool) CleanupIdleConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	closed := 0
	for key, pc := range p.clients {
		if p.now().Sub(pc.lastUsed) > idleConnectionTTL {
			pc.client.Close()
			delete(p.clients, key)
			closed++
		}
	}
	return closed
}

// Close closes every cached client.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, pc := range p.clients {
		pc.client.Close()
		delete(p.clients, key)
	}
}

// Stats 获取连接池统计信息
func (p *ClientPool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := make([]map[string]interface{}, 0, len(p.clients))
	for key, pc := range p.clients {
		conns = append(conns, map[string]interface{}{
			"key":       key[:8],
			"last_used": pc.lastUsed.Format(time.RFC3339),
			"idle":      p.now().Sub(pc.lastUsed).Round(time.Second).String(),
		})
	}
	return map[string]interface{}{
		"total_connections": len(p.clients),
		"connections":       conns,
	}
}

// CleanupIdleConnections runs the process-wide pool cleanup.
func CleanupIdleConnections() int {
	return globalPool.CleanupIdleConnections()
}

// ClosePool closes every client of the process-wide pool.
func ClosePool() {
	globalPool.Close()
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() map[string]interface{} {
	return globalPool.Stats()
}

// configKey hashes the configuration so credentials never appear in stats output.
func configKey(cfg DatabaseConfig) string {
	h := sha256.New()
	for _, s := range []string{cfg.SupabaseURL, cfg.SupabaseKey, cfg.StorageBucket, cfg.PostgresDSN} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

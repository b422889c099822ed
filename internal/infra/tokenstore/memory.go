// Package tokenstore holds the in-process consistency token cache used when
// no Redis server is configured.
package tokenstore

import (
	"context"
	"sync"
)

// Memory caches the latest consistency token per table.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) PutToken(ctx context.Context, tableName, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tableName] = token
	return nil
}

func (m *Memory) Token(ctx context.Context, tableName string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[tableName]
	return tok, ok, nil
}

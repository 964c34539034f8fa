package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BaSui01/structflow/structured"
)

// DefaultPrefix 是结果缓存键的默认命名空间。
const DefaultPrefix = "structflow:result:"

// ResultCache 把通过校验的提取结果存入 Redis，实现 extraction.ResultCache。
// 键为 prefix + sha256(provider, model, schema JSON, prompt)。
type ResultCache struct {
	manager  *Manager
	prefix   string
	ttl      time.Duration
	provider string
	model    string
}

// NewResultCache creates a ResultCache. An empty prefix uses DefaultPrefix and
// a zero ttl uses the manager's default.
func NewResultCache(m *Manager, prefix string, ttl time.Duration) *ResultCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ResultCache{manager: m, prefix: prefix, ttl: ttl}
}

// ForModel returns a copy whose keys are scoped to provider and model, so a
// result produced by one model is never served for another.
func (c *ResultCache) ForModel(provider, model string) *ResultCache {
	cp := *c
	cp.provider, cp.model = provider, model
	return &cp
}

// Key returns the cache key for schema and prompt.
func (c *ResultCache) Key(schema *structured.JSONSchema, prompt string) (string, error) {
	raw, err := schema.ToJSON()
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(c.provider))
	h.Write([]byte{0})
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write(raw)
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return c.prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Lookup returns the cached value. A miss is (nil, false, nil).
func (c *ResultCache) Lookup(ctx context.Context, schema *structured.JSONSchema, prompt string) (any, bool, error) {
	key, err := c.Key(schema, prompt)
	if err != nil {
		return nil, false, err
	}
	var value any
	if err := c.manager.GetJSON(ctx, key, &value); err != nil {
		if IsCacheMiss(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Evict removes the entry for schema and prompt.
func (c *ResultCache) Evict(ctx context.Context, schema *structured.JSONSchema, prompt string) error {
	key, err := c.Key(schema, prompt)
	if err != nil {
		return err
	}
	return c.manager.Delete(ctx, key)
}

// Store saves value under the key for schema and prompt.
func (c *ResultCache) Store(ctx context.Context, schema *structured.JSONSchema, prompt string, value any) error {
	key, err := c.Key(schema, prompt)
	if err != nil {
		return err
	}
	return c.manager.SetJSON(ctx, key, value, c.ttl)
}

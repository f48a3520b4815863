// Package resultcache 实现基于修订号的枚举结果差量缓存
package resultcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"github.com/shongo-go/connector/src/types"
)

// Item 枚举结果中的单个条目
type Item = map[string]any

// IdentityFunc 返回条目的自然键（如 conferenceName、participantName）
type IdentityFunc func(Item) (string, bool)

// Snapshot 上一次枚举的修订号和完整结果
type Snapshot struct {
	Revision int64
	items    []Item
	index    map[string]Item
}

// Len 返回快照中的条目数量
func (s *Snapshot) Len() int {
	return len(s.items)
}

// Cache 单个连接器实例的结果缓存
type Cache struct {
	mu       sync.Mutex
	store    gcache.Cache
	identity IdentityFunc
}

func New(size int, ttl time.Duration, identity IdentityFunc) *Cache {
	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &Cache{store: builder.Build(), identity: identity}
}

// Lookup 返回 key 对应的上一次结果，不存在时返回 false
func (c *Cache) Lookup(key Key) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.store.GetIFPresent(key)
	if err != nil {
		return nil, false
	}
	return v.(*Snapshot), true
}

// Merge 把差量结果与上一次快照合并：dead 条目丢弃，未变化的条目用缓存内容替换。
// previous 为 nil 表示 results 是完整结果。合并后的列表与新修订号写回缓存。
func (c *Cache) Merge(key Key, previous *Snapshot, revision int64, results []Item) ([]Item, error) {
	merged := make([]Item, 0, len(results))
	for _, item := range results {
		if item == nil {
			continue
		}
		if previous != nil {
			if IsDead(item) {
				continue
			}
			if !HasChanged(item) {
				cached, ok := previous.get(c.identity, item)
				if !ok {
					return nil, fmt.Errorf("%s: %v: %w", key, describe(c.identity, item), types.ErrCacheInconsistent)
				}
				item = cached
			}
		}
		merged = append(merged, item)
	}

	snapshot := &Snapshot{Revision: revision, items: merged, index: make(map[string]Item, len(merged))}
	for _, item := range merged {
		if id, ok := c.identity(item); ok {
			snapshot.index[id] = item
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(key, snapshot); err != nil {
		return nil, fmt.Errorf("failed to store results of %s: %w", key, err)
	}
	return merged, nil
}

// Forget 移除某个命令的缓存
func (c *Cache) Forget(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(key)
}

func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Purge()
}

func (s *Snapshot) get(identity IdentityFunc, item Item) (Item, bool) {
	if id, ok := identity(item); ok {
		cached, found := s.index[id]
		return cached, found
	}
	return nil, false
}

func describe(identity IdentityFunc, item Item) string {
	if id, ok := identity(item); ok {
		return id
	}
	return fmt.Sprint(item)
}

// IsDead 条目被标记为已删除，标记可能位于 currentState 中
func IsDead(item Item) bool {
	if v, ok := item["dead"].(bool); ok && v {
		return true
	}
	if state, ok := item["currentState"].(map[string]any); ok {
		if v, ok := state["dead"].(bool); ok && v {
			return true
		}
	}
	return false
}

// HasChanged 只有显式标记 changed=false 的条目视为未变化
func HasChanged(item Item) bool {
	if v, ok := item["changed"].(bool); ok && !v {
		return false
	}
	if state, ok := item["currentState"].(map[string]any); ok {
		if v, ok := state["changed"].(bool); ok && !v {
			return false
		}
	}
	return true
}

// FieldIdentity 按顺序尝试字段，返回第一个非空的字段值作为自然键
func FieldIdentity(fields ...string) IdentityFunc {
	return func(item Item) (string, bool) {
		for _, f := range fields {
			if v, ok := item[f]; ok && v != nil {
				if s := fmt.Sprint(v); s != "" {
					return f + "=" + s, true
				}
			}
		}
		return "", false
	}
}

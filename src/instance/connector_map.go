package instance

import (
	"sort"
	"sync"

	"github.com/shongo-go/connector/src/connector"
)

// ConnectorMap 按名称索引的并发安全连接器表
//
// 零值可直接使用，写操作在首次调用时初始化内部 map。
// HTTP handler 遍历的同时 manager 可能在增删连接器。
type ConnectorMap struct {
	mu sync.RWMutex
	m  map[string]connector.Connector
}

func (cm *ConnectorMap) initLocked() {
	if cm.m == nil {
		cm.m = make(map[string]connector.Connector)
	}
}

func (cm *ConnectorMap) Get(name string) (connector.Connector, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.m[name]
	return c, ok
}

func (cm *ConnectorMap) Set(name string, c connector.Connector) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.initLocked()
	cm.m[name] = c
}

// SetIfAbsent 名称已存在时返回 false
func (cm *ConnectorMap) SetIfAbsent(name string, c connector.Connector) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.m[name]; ok {
		return false
	}
	cm.initLocked()
	cm.m[name] = c
	return true
}

func (cm *ConnectorMap) Delete(name string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.m, name)
}

func (cm *ConnectorMap) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.m)
}

// Names 返回排序后的连接器名称
func (cm *ConnectorMap) Names() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	names := make([]string, 0, len(cm.m))
	for name := range cm.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot 返回浅拷贝，遍历期间需要调用设备时使用，避免长时间持有读锁
func (cm *ConnectorMap) Snapshot() map[string]connector.Connector {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	snapshot := make(map[string]connector.Connector, len(cm.m))
	for name, c := range cm.m {
		snapshot[name] = c
	}
	return snapshot
}

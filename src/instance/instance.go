package instance

import (
	"context"
	"sync"

	"github.com/shongo-go/connector/src/interfaces"
	"github.com/shongo-go/connector/src/metrics"
)

type key int

// Key 在 context 中存放 *Instance
const Key key = 0

type Instance struct {
	WaitGroup        sync.WaitGroup
	Connectors       ConnectorMap
	Metrics          *metrics.Metrics
	Server           interfaces.Module
	ConnectorManager interfaces.Module
	// Controller 本地控制器，类型由 controller 包决定
	Controller any
}

// GetInstance 从 context 中取出 Instance，不存在时返回 nil
func GetInstance(ctx context.Context) *Instance {
	if inst, ok := ctx.Value(Key).(*Instance); ok {
		return inst
	}
	return nil
}

package instance

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/polycom"
)

func newStub(t *testing.T, name string) connector.Connector {
	t.Helper()
	c, err := polycom.New(connector.Config{Name: name, Agent: polycom.Agent})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestConnectorMap_ZeroValue(t *testing.T) {
	var cm ConnectorMap

	assert.Equal(t, 0, cm.Len())
	c, ok := cm.Get("mcu")
	assert.False(t, ok)
	assert.Nil(t, c)
	assert.Empty(t, cm.Names())
	assert.NotNil(t, cm.Snapshot())
	cm.Delete("mcu")
}

func TestConnectorMap(t *testing.T) {
	var cm ConnectorMap
	a, b := newStub(t, "a"), newStub(t, "b")

	cm.Set("b", b)
	assert.True(t, cm.SetIfAbsent("a", a))
	assert.False(t, cm.SetIfAbsent("a", b))

	got, ok := cm.Get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []string{"a", "b"}, cm.Names())

	snap := cm.Snapshot()
	cm.Delete("a")
	assert.Len(t, snap, 2)
	assert.Equal(t, 1, cm.Len())
}

func TestConnectorMap_Concurrent(t *testing.T) {
	var cm ConnectorMap
	stub := newStub(t, "stub")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name := fmt.Sprintf("c%d-%d", i, j%10)
				cm.Set(name, stub)
				_ = cm.Names()
				cm.Delete(name)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, cm.Len())
}

func TestGetInstance(t *testing.T) {
	assert.Nil(t, GetInstance(context.Background()))
	inst := new(Instance)
	ctx := context.WithValue(context.Background(), Key, inst)
	assert.Same(t, inst, GetInstance(ctx))
}

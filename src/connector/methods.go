package connector

import (
	"reflect"
	"sort"
)

// capabilities 所有可选能力接口
var capabilities = []reflect.Type{
	reflect.TypeOf((*RoomService)(nil)).Elem(),
	reflect.TypeOf((*ParticipantService)(nil)).Elem(),
	reflect.TypeOf((*RecordingService)(nil)).Elem(),
	reflect.TypeOf((*MonitoringService)(nil)).Elem(),
	reflect.TypeOf((*EndpointService)(nil)).Elem(),
	reflect.TypeOf((*AliasService)(nil)).Elem(),
}

// MethodLister 连接器可以声明其中某些方法实际上不受支持
type MethodLister interface {
	UnsupportedMethods() []string
}

// Capabilities 返回连接器实现的能力接口名称
func Capabilities(c Connector) []string {
	t := reflect.TypeOf(c)
	var names []string
	for _, iface := range capabilities {
		if t.Implements(iface) {
			names = append(names, iface.Name())
		}
	}
	return names
}

// SupportedMethods 返回连接器支持的能力方法
func SupportedMethods(c Connector) []string {
	unsupported := make(map[string]struct{})
	if l, ok := c.(MethodLister); ok {
		for _, m := range l.UnsupportedMethods() {
			unsupported[m] = struct{}{}
		}
	}
	t := reflect.TypeOf(c)
	seen := make(map[string]struct{})
	var methods []string
	for _, iface := range capabilities {
		if !t.Implements(iface) {
			continue
		}
		for i := 0; i < iface.NumMethod(); i++ {
			name := iface.Method(i).Name
			if _, ok := unsupported[name]; ok {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			methods = append(methods, name)
		}
	}
	sort.Strings(methods)
	return methods
}

// InterfaceMethods 返回接口指针所指接口的全部方法名，例如 (*RoomService)(nil)
func InterfaceMethods(ifaces ...any) []string {
	var methods []string
	for _, iface := range ifaces {
		t := reflect.TypeOf(iface).Elem()
		for i := 0; i < t.NumMethod(); i++ {
			methods = append(methods, t.Method(i).Name)
		}
	}
	sort.Strings(methods)
	return methods
}

package servers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/consts"
	"github.com/shongo-go/connector/src/instance"
	applog "github.com/shongo-go/connector/src/log"
	"github.com/shongo-go/connector/src/pkg/sysstats"
	"github.com/shongo-go/connector/src/types"
)

type commonResp struct {
	ErrNo  int    `json:"err_no"`
	ErrMsg string `json:"err_msg"`
	Data   any    `json:"data"`
}

type connectorInfo struct {
	Name             string                `json:"name"`
	Agent            string                `json:"agent"`
	Address          types.DeviceAddress   `json:"address"`
	State            types.ConnectionState `json:"state"`
	Device           types.DeviceInfo      `json:"device"`
	Capabilities     []string              `json:"capabilities"`
	SupportedMethods []string              `json:"supported_methods"`
	LastError        string                `json:"last_error,omitempty"`
}

// reconnecter 由 manager 实现
type reconnecter interface {
	Reconnect(name string) error
}

// folderSetter 由本地控制器实现
type folderSetter interface {
	SetRecordingFolderID(ctx context.Context, connectorName, roomID, folderID string) error
}

func writeJSON(writer http.ResponseWriter, obj any) {
	writeJsonWithStatusCode(writer, http.StatusOK, obj)
}

func writeJsonWithStatusCode(writer http.ResponseWriter, code int, obj any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)
	if err := json.NewEncoder(writer).Encode(obj); err != nil {
		applog.GetLogger().WithError(err).Warn("failed to write response")
	}
}

func writeError(writer http.ResponseWriter, code int, msg string) {
	writeJsonWithStatusCode(writer, code, commonResp{ErrNo: code, ErrMsg: msg})
}

// errorStatus 把连接器错误映射为 HTTP 状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func describe(c connector.Connector, state types.ConnectionState) connectorInfo {
	info := connectorInfo{
		Name:             c.Name(),
		Agent:            c.Agent(),
		Address:          c.Address(),
		State:            state,
		Device:           c.GetDeviceInfo(),
		Capabilities:     connector.Capabilities(c),
		SupportedMethods: connector.SupportedMethods(c),
	}
	if le, ok := c.(interface{ LastError() error }); ok {
		if err := le.LastError(); err != nil {
			info.LastError = err.Error()
		}
	}
	return info
}

// cachedState 列表接口不探测设备
func cachedState(c connector.Connector) types.ConnectionState {
	if s, ok := c.(interface{ State() types.ConnectionState }); ok {
		return s.State()
	}
	return types.Disconnected
}

func findConnector(writer http.ResponseWriter, r *http.Request) (connector.Connector, bool) {
	inst := instance.GetInstance(r.Context())
	name := mux.Vars(r)["name"]
	c, ok := inst.Connectors.Get(name)
	if !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("connector: %s can not find", name))
	}
	return c, ok
}

func getInfo(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, consts.GetAppInfo())
}

func getConfig(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, configs.GetCurrentConfig())
}

func getAgents(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, connector.Agents())
}

func getStatus(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	connected := 0
	for _, c := range inst.Connectors.Snapshot() {
		if cachedState(c).IsConnected() {
			connected++
		}
	}
	writeJSON(writer, map[string]any{
		"app":     consts.GetAppInfo(),
		"process": sysstats.Collect(),
		"connectors": map[string]int{
			"total":     inst.Connectors.Len(),
			"connected": connected,
		},
	})
}

func getAllConnectors(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	connectors := inst.Connectors.Snapshot()
	infos := make([]connectorInfo, 0, len(connectors))
	for _, name := range inst.Connectors.Names() {
		if c, ok := connectors[name]; ok {
			infos = append(infos, describe(c, cachedState(c)))
		}
	}
	writeJSON(writer, infos)
}

func getConnector(writer http.ResponseWriter, r *http.Request) {
	c, ok := findConnector(writer, r)
	if !ok {
		return
	}
	writeJSON(writer, describe(c, c.GetConnectionState(r.Context())))
}

func getConnectorLogs(writer http.ResponseWriter, r *http.Request) {
	c, ok := findConnector(writer, r)
	if !ok {
		return
	}
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(writer, c.GetLogger().GetLogs())
}

func getConnectorRooms(writer http.ResponseWriter, r *http.Request) {
	c, ok := findConnector(writer, r)
	if !ok {
		return
	}
	rs, ok := c.(connector.RoomService)
	if !ok {
		writeError(writer, http.StatusNotImplemented, types.Unsupported("ListRooms").Error())
		return
	}
	rooms, err := rs.ListRooms(r.Context())
	if err != nil {
		writeError(writer, errorStatus(err), err.Error())
		return
	}
	writeJSON(writer, rooms)
}

func getConnectorLoad(writer http.ResponseWriter, r *http.Request) {
	c, ok := findConnector(writer, r)
	if !ok {
		return
	}
	ms, ok := c.(connector.MonitoringService)
	if !ok {
		writeError(writer, http.StatusNotImplemented, types.Unsupported("GetDeviceLoadInfo").Error())
		return
	}
	load, err := ms.GetDeviceLoadInfo(r.Context())
	if err != nil {
		writeError(writer, errorStatus(err), err.Error())
		return
	}
	writeJSON(writer, load)
}

func reconnectConnector(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	m, ok := inst.ConnectorManager.(reconnecter)
	if !ok {
		writeError(writer, http.StatusServiceUnavailable, "connector manager is not running")
		return
	}
	if err := m.Reconnect(mux.Vars(r)["name"]); err != nil {
		writeError(writer, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(writer, commonResp{Data: "OK"})
}

/*
	Put data example

{
	"folder_id": "1f0c3b9e"
}

	an empty folder_id clears the mapping
*/
func putRecordingFolder(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	setter, ok := inst.Controller.(folderSetter)
	if !ok {
		writeError(writer, http.StatusServiceUnavailable, "local controller is not configured")
		return
	}
	vars := mux.Vars(r)
	if _, ok := inst.Connectors.Get(vars["name"]); !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("connector: %s can not find", vars["name"]))
		return
	}
	b, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(b) {
		writeError(writer, http.StatusBadRequest, "invalid request body")
		return
	}
	folderID := gjson.GetBytes(b, "folder_id").String()
	if err := setter.SetRecordingFolderID(r.Context(), vars["name"], vars["room"], folderID); err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(writer, commonResp{Data: "OK"})
}

func metricsHandler(ctx context.Context) http.Handler {
	inst := instance.GetInstance(ctx)
	if inst == nil || inst.Metrics == nil {
		return http.NotFoundHandler()
	}
	return inst.Metrics.Handler(func() {
		for name, c := range inst.Connectors.Snapshot() {
			inst.Metrics.SetState(name, int(cachedState(c)))
		}
	})
}

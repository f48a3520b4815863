package lifesize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/transport/transporttest"
	"github.com/shongo-go/connector/src/types"
)

// fakeDevice 模拟 LifeSize 命令行：回显命令，输出结果，最后一行 ok,00 或 error,xx
type fakeDevice struct {
	mu         sync.Mutex
	muteDevice string
	calls      map[string]string
	nextCall   int
	uptime     string
	async      []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{muteDevice: "active", calls: map[string]string{}, nextCall: 3, uptime: "1,2,3,4"}
}

func (d *fakeDevice) handle(line string, w io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	code := "00"
	switch {
	case line == "set help-mode off":
	case line == "get system serial-number":
		out = []string{"ABC123,DEF456"}
	case line == "get system model":
		out = []string{"LifeSize,Team 220"}
	case line == "get system version":
		out = []string{"LS_TM1,4.7.18 (11)"}
	case line == "get system uptime":
		out = []string{d.uptime}
	case line == "get audio mute":
		out = []string{"off"}
	case line == "status presentation statistics":
		out = []string{"presentation,false,none"}
	case line == "get audio mute-device":
		out = []string{d.muteDevice}
	case strings.HasPrefix(line, "set audio mute-device "):
		d.muteDevice = strings.TrimPrefix(line, "set audio mute-device ")
	case line == "status call active":
		for _, c := range d.calls {
			out = append(out, c)
		}
	case strings.HasPrefix(line, "status call active -C "):
		if c, ok := d.calls[strings.TrimPrefix(line, "status call active -C ")]; ok {
			out = []string{c}
		}
	case strings.HasPrefix(line, "control call dial "):
		id := fmt.Sprint(d.nextCall)
		d.nextCall++
		remote := strings.TrimPrefix(line, "control call dial ")
		d.calls[id] = fmt.Sprintf("%s,0,Dialing,No,Video,%s,,,h323", id, remote)
		d.async = append(d.async, fmt.Sprintf("CS,%s,0,Dialing,Video,,%s", id, remote))
	case strings.HasPrefix(line, "control call hangup "):
		id := strings.TrimPrefix(line, "control call hangup ")
		if id == "-a" {
			for id := range d.calls {
				d.async = append(d.async, fmt.Sprintf("CS,%s,0,Terminated,Video,,", id))
			}
			d.calls = map[string]string{}
		} else if _, ok := d.calls[id]; ok {
			delete(d.calls, id)
			d.async = append(d.async, fmt.Sprintf("CS,%s,0,Terminated,Video,,", id))
		} else {
			code = "0e"
		}
	case strings.HasPrefix(line, "set "), strings.HasPrefix(line, "control "):
	default:
		code = "09"
	}
	var sb strings.Builder
	sb.WriteString(prompt + line + "\n")
	// 异步消息可能夹在命令输出之间
	for _, a := range d.async {
		sb.WriteString(a + "\n")
	}
	d.async = nil
	for _, o := range out {
		sb.WriteString(o + "\n")
	}
	if code == "00" {
		sb.WriteString("ok,00\n")
	} else {
		sb.WriteString("error," + code + "\n")
	}
	_, _ = io.WriteString(w, sb.String())
}

func newConnector(t *testing.T, dev *fakeDevice) (*Connector, *transporttest.ShellServer) {
	t.Helper()
	srv, err := transporttest.NewShellServer("admin", "secret", "Welcome\n", dev.handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	addr, err := types.ParseDeviceAddress(srv.Addr)
	require.NoError(t, err)
	conn, err := connector.New(connector.Config{
		Name:     "lifesize",
		Agent:    Agent,
		Address:  addr,
		Username: "admin",
		Password: "secret",
		Options:  configs.Options{"timeout": "2s"},
	})
	require.NoError(t, err)
	return conn.(*Connector), srv
}

func connect(t *testing.T, dev *fakeDevice) (*Connector, *transporttest.ShellServer) {
	t.Helper()
	c, srv := newConnector(t, dev)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c, srv
}

func TestParseOutput(t *testing.T) {
	out, err := parseOutput("get system uptime", []string{"$ ", "$ get system uptime", "1,2,3,4", "", "junk", "ok,00"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1,2,3,4"}, out)

	_, err = parseOutput("control call hangup 1", []string{"$ control call hangup 1", "error,0e"})
	var ce *types.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "0x0e", ce.Code)
	assert.Equal(t, "Not In Call", ce.Message)

	_, err = parseOutput("x", []string{"$ x", "error,7f"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Unknown Error", ce.Message)

	_, err = parseOutput("x", nil)
	assert.Error(t, err)
}

func TestParseCall(t *testing.T) {
	c, err := New(connector.Config{Name: "lifesize", Agent: Agent, Address: types.DeviceAddress{Host: "device"}})
	require.NoError(t, err)

	call := c.parseCall("7,1,Connected,Yes,Video,950087201,,,h323,,00:01:02")
	require.NotNil(t, call)
	assert.Equal(t, types.EndpointCall{ID: "7", State: types.CallConnected, RemoteAddress: "950087201", Incoming: true}, *call)

	assert.Nil(t, c.parseCall("x,1,Connected,Yes,Video,1,,,h323"))
	assert.Nil(t, c.parseCall("7,1,Connected,Yes,Video,1,,,isdn"))
	assert.Nil(t, c.parseCall("7,1,Terminated,Yes,Video,1,,,h323"))
	assert.Nil(t, c.parseCall("7,1,Connected"))
}

func TestConnect(t *testing.T) {
	c, srv := connect(t, newFakeDevice())

	assert.Equal(t, types.Connected, c.State())
	info := c.GetDeviceInfo()
	assert.Equal(t, "Team 220", info.Name)
	assert.Equal(t, "CPU board: ABC123, System board: DEF456", info.SerialNumber)
	assert.Equal(t, "4.7.18 (11)", info.SoftwareVersion)
	assert.Equal(t, "set help-mode off", srv.Received()[0])
	assert.Equal(t, []string{"MonitoringService", "EndpointService"}, connector.Capabilities(c))

	assert.Equal(t, types.Connected, c.GetConnectionState(context.Background()))

	load, err := c.GetDeviceLoadInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour+3*time.Minute+4*time.Second, load.Uptime)

	_, err = c.GetUsageStats(context.Background())
	assert.ErrorIs(t, err, types.ErrUnsupported)

	require.NoError(t, c.Disconnect(context.Background()))
	assert.Equal(t, types.Disconnected, c.GetConnectionState(context.Background()))
	assert.ErrorIs(t, c.HangUpAll(context.Background()), types.ErrNotConnected)
}

func TestConnect_WrongPassword(t *testing.T) {
	c, srv := newConnector(t, newFakeDevice())
	c.Config.Password = "wrong"
	assert.Error(t, c.Connect(context.Background()))
	assert.Equal(t, types.Disconnected, c.State())
	assert.Empty(t, srv.Received())
}

func TestDialAndHangUp(t *testing.T) {
	c, _ := connect(t, newFakeDevice())
	ctx := context.Background()

	id, err := c.Dial(ctx, types.NewAlias(types.AliasH323E164, "950087201"))
	require.NoError(t, err)
	assert.Equal(t, "3", id)

	status, err := c.GetEndpointStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Calls, 1)
	assert.Equal(t, types.EndpointCall{ID: "3", State: types.CallDialing, RemoteAddress: "950087201"}, status.Calls[0])

	id, err = c.Dial(ctx, types.NewAlias(types.AliasSIPURI, "room@example.org"))
	require.NoError(t, err)
	assert.Equal(t, "4", id)

	require.NoError(t, c.HangUp(ctx, "3"))
	status, err = c.GetEndpointStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Calls, 1)
	assert.Equal(t, "4", status.Calls[0].ID)

	err = c.HangUp(ctx, "3")
	var ce *types.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "0x0e", ce.Code)
	assert.Equal(t, "control call hangup", ce.Command)
	assert.NotEmpty(t, ce.Device)

	require.NoError(t, c.HangUpAll(ctx))
	status, err = c.GetEndpointStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Calls)
}

func TestMuteRestoresMuteDevice(t *testing.T) {
	dev := newFakeDevice()
	c, srv := connect(t, dev)
	ctx := context.Background()

	require.NoError(t, c.Mute(ctx))
	received := srv.Received()
	assert.Equal(t, []string{
		"get audio mute-device",
		"set audio mute-device all",
		"set audio mute on",
		"set audio mute-device active",
	}, received[len(received)-4:])

	dev.mu.Lock()
	dev.muteDevice = "all"
	dev.mu.Unlock()
	require.NoError(t, c.Unmute(ctx))
	received = srv.Received()
	assert.Equal(t, []string{"get audio mute-device", "set audio mute off"}, received[len(received)-2:])
}

func TestEndpointCommands(t *testing.T) {
	c, srv := connect(t, newFakeDevice())
	ctx := context.Background()

	require.NoError(t, c.SetMicrophoneLevel(ctx, 73))
	require.NoError(t, c.SetPlaybackLevel(ctx, 120))
	require.NoError(t, c.StandBy(ctx))
	require.NoError(t, c.StartPresentation(ctx))
	require.NoError(t, c.StopPresentation(ctx))
	require.NoError(t, c.ShowMessage(ctx, 10*time.Second, "say \"hi\"\nbye"))
	require.NoError(t, c.ResetDevice(ctx))
	assert.ErrorIs(t, c.EnableVideo(ctx), types.ErrUnsupported)
	assert.ErrorIs(t, c.DisableVideo(ctx), types.ErrUnsupported)

	received := srv.Received()
	assert.Equal(t, []string{
		"set audio gain 14",
		"set volume speaker 100",
		"control sleep",
		"set system presentation on",
		"control call presentation 1 start",
		"control call presentation 1 stop",
		`set system message -t 10 "say 'hi'\nbye"`,
		"control reboot 1",
	}, received[len(received)-8:])
}

func TestAsyncMessages(t *testing.T) {
	c, srv := connect(t, newFakeDevice())
	ctx := context.Background()

	srv.Push("MS,true")
	srv.Push("SS,true")
	srv.Push("PS,1,0,Initiated,Yes,")
	srv.Push("VC,1,0,0,0")
	assert.Eventually(t, func() bool {
		status, err := c.GetEndpointStatus(ctx)
		return err == nil && status.Muted && status.Standby && status.Presentation
	}, 2*time.Second, 50*time.Millisecond)

	srv.Push("PS,1,0,Terminated,Yes,")
	srv.Push("MS,false")
	assert.Eventually(t, func() bool {
		status, err := c.GetEndpointStatus(ctx)
		return err == nil && !status.Muted && !status.Presentation
	}, 2*time.Second, 50*time.Millisecond)
}

func TestReconnect(t *testing.T) {
	c, srv := connect(t, newFakeDevice())

	srv.DropSessions()
	assert.Eventually(t, func() bool {
		n := 0
		for _, l := range srv.Received() {
			if l == "set help-mode off" {
				n++
			}
		}
		return n == 2 && c.State() == types.Connected
	}, 5*time.Second, 50*time.Millisecond)

	load, err := c.GetDeviceLoadInfo(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, load.Uptime)
}

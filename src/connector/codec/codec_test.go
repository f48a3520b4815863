package codec

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
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/transport/transporttest"
	"github.com/shongo-go/connector/src/types"
)

const systemUnit = `<XmlDoc resultId="">
<Status>
<SystemUnit item="1">
<ProductId>Cisco Codec C90</ProductId>
<Uptime>93784</Uptime>
<Software item="1">
<Version>TC6.3.1.b3ec1c6</Version>
<ReleaseDate>2014-05-21</ReleaseDate>
</Software>
<Hardware item="1">
<Module item="1"><SerialNumber>A1</SerialNumber></Module>
<MainBoard item="1"><SerialNumber>B2</SerialNumber></MainBoard>
<VideoBoard item="1"><SerialNumber>C3</SerialNumber></VideoBoard>
<AudioBoard item="1"><SerialNumber>D4</SerialNumber></AudioBoard>
</Hardware>
</SystemUnit>
</Status>
</XmlDoc>`

// fakeCodec 模拟 XML 输出模式下的 TSH 命令行
type fakeCodec struct {
	mu        sync.Mutex
	calls     []string
	lingering int
	muted     bool
	standby   bool
}

func (f *fakeCodec) handle(line string, w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch {
	case line == "echo off":
		_, _ = io.WriteString(w, "OK\n")
		return
	case line == "xpreferences outputmode xml":
		return
	case line == "xStatus SystemUnit":
		_, _ = io.WriteString(w, systemUnit+"\n")
		return
	case line == "xStatus SystemUnit Uptime":
		body = `<Status><SystemUnit item="1"><Uptime>93784</Uptime></SystemUnit></Status>`
	case strings.HasPrefix(line, "xCommand Dial Number: "):
		id := fmt.Sprint(len(f.calls) + 1)
		f.calls = append(f.calls, id+"|"+strings.TrimPrefix(line, "xCommand Dial Number: "))
		body = `<DialResult item="1" status="OK"><CallId>` + id + `</CallId><ConferenceId>1</ConferenceId></DialResult>`
	case line == "xCommand Call Disconnect CallId: 99":
		body = `<CallDisconnectResult item="1" status="Error"><Description>No active call(s) found</Description>` +
			`<Cause>99</Cause></CallDisconnectResult>`
	case line == "xCommand Call DisconnectAll":
		f.lingering = 2
		body = `<CallDisconnectAllResult item="1" status="OK"/>`
	case line == "xStatus Call":
		var sb strings.Builder
		sb.WriteString("<Status>")
		for _, c := range f.calls {
			parts := strings.SplitN(c, "|", 2)
			fmt.Fprintf(&sb, `<Call item="%s"><Status>Connected</Status><Direction>Outgoing</Direction>`+
				`<RemoteNumber>%s</RemoteNumber><DisplayName>Remote %s</DisplayName></Call>`,
				parts[0], parts[1], parts[0])
		}
		if f.lingering > 0 {
			f.lingering--
			if f.lingering == 0 {
				f.calls = nil
			}
		}
		sb.WriteString("</Status>")
		body = sb.String()
	case line == "xStatus Audio Microphones Mute":
		mute := "Off"
		if f.muted {
			mute = "On"
		}
		body = `<Status><Audio item="1"><Microphones item="1"><Mute>` + mute + `</Mute></Microphones></Audio></Status>`
	case line == "xStatus Conference Presentation Mode":
		body = `<Status><Conference item="1"><Presentation item="1"><Mode>Sending</Mode></Presentation></Conference></Status>`
	case line == "xStatus Standby Active":
		active := "Off"
		if f.standby {
			active = "On"
		}
		body = `<Status><Standby item="1"><Active>` + active + `</Active></Standby></Status>`
	case line == "xCommand Audio Microphones Mute":
		f.muted = true
		body = `<MicrophonesMuteResult item="1" status="OK"/>`
	case line == "xCommand Standby Activate":
		f.standby = len(f.calls) == 0
		body = `<StandbyActivateResult item="1" status="OK"/>`
	case strings.HasPrefix(line, "xCommand"), strings.HasPrefix(line, "xConfiguration"):
		body = `<Result item="1" status="OK"/>`
	default:
		body = `<Result status="ParameterError"/><Usage>usage: xCommand ...</Usage>`
	}
	_, _ = io.WriteString(w, "<XmlDoc resultId=\"\">\n"+body+"\n</XmlDoc>\n")
}

func connect(t *testing.T, f *fakeCodec) (*Connector, *transporttest.ShellServer) {
	t.Helper()
	srv, err := transporttest.NewShellServer("admin", "secret", "Welcome to TANDBERG Codec Release TC6.3.1\n", f.handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	addr, err := types.ParseDeviceAddress(srv.Addr)
	require.NoError(t, err)
	conn, err := connector.New(connector.Config{
		Name:     "codec",
		Agent:    Agent,
		Address:  addr,
		Username: "admin",
		Password: "secret",
		Options:  configs.Options{"timeout": "2s"},
	})
	require.NoError(t, err)
	c := conn.(*Connector)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c, srv
}

func TestRender(t *testing.T) {
	assert.Equal(t, "xCommand Call DisconnectAll", render(command.New("xCommand Call DisconnectAll")))
	assert.Equal(t, `xCommand Message Alert Display Duration: 5 Text: "hello world"`,
		render(command.New("xCommand Message Alert Display").Set("Duration", 5).Set("Text", "hello world")))
	assert.Equal(t, `xCommand Dial Number: ""`, render(command.New("xCommand Dial").Set("Number", "")))
}

func TestParseResult(t *testing.T) {
	doc, err := parseResult(strings.Split("junk\n"+systemUnit, "\n"))
	require.NoError(t, err)
	assert.Equal(t, "Cisco Codec C90", text(doc, "/XmlDoc/Status/SystemUnit/ProductId"))

	cases := []struct {
		xml  string
		want string
	}{
		{`<Status status="Error"><Reason>No match on address expression</Reason><XPath>Status/Foo</XPath></Status>`,
			"No match on address expression (XPath: Status/Foo)"},
		{`<Status status="Error"><Reason>Bad</Reason></Status>`, "Bad"},
		{`<DialResult status="Error"><Description>Busy</Description><Cause>17</Cause></DialResult>`,
			"Busy (Cause: 17)"},
		{`<Dial status="ParameterError"/><Usage>usage: xCommand Dial Number: &lt;S: 0, 255&gt;</Usage>`,
			"Parameter error. Usage: usage: xCommand Dial Number: <S: 0, 255>"},
		{`<Result status="Error"/>`, "Uncategorized error"},
	}
	for _, tc := range cases {
		_, err := parseResult([]string{"<XmlDoc>", tc.xml, "</XmlDoc>"})
		var ce *types.CommandError
		require.True(t, errors.As(err, &ce), tc.xml)
		assert.Equal(t, tc.want, ce.Message)
	}

	_, err = parseResult([]string{"OK"})
	assert.ErrorContains(t, err, "unexpected output")
}

func TestConnect(t *testing.T) {
	c, srv := connect(t, &fakeCodec{})

	info := c.GetDeviceInfo()
	assert.Equal(t, "Cisco Codec C90", info.Name)
	assert.Equal(t, "TC6.3.1.b3ec1c6 (released 2014-05-21)", info.SoftwareVersion)
	assert.Equal(t, "Module: A1, MainBoard: B2, VideoBoard: C3, AudioBoard: D4", info.SerialNumber)
	assert.Equal(t, []string{"echo off", "xpreferences outputmode xml", "xStatus SystemUnit"}, srv.Received()[:3])
	assert.Equal(t, types.Connected, c.GetConnectionState(context.Background()))

	load, err := c.GetDeviceLoadInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour+3*time.Minute+4*time.Second, load.Uptime)

	require.NoError(t, c.Disconnect(context.Background()))
	_, err = c.Dial(context.Background(), types.NewAlias(types.AliasH323E164, "950087201"))
	assert.ErrorIs(t, err, types.ErrNotConnected)
}

func TestDialAndStatus(t *testing.T) {
	f := &fakeCodec{}
	c, _ := connect(t, f)
	ctx := context.Background()

	id, err := c.Dial(ctx, types.NewAlias(types.AliasH323E164, "950087201"))
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	require.NoError(t, c.Mute(ctx))
	status, err := c.GetEndpointStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.EndpointCall{{
		ID:            "1",
		State:         types.CallConnected,
		RemoteAddress: "950087201",
		RemoteName:    "Remote 1",
	}}, status.Calls)
	assert.True(t, status.Muted)
	assert.True(t, status.Presentation)
	assert.False(t, status.Standby)

	err = c.HangUp(ctx, "99")
	var ce *types.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "No active call(s) found (Cause: 99)", ce.Message)
	assert.Equal(t, "xCommand Call Disconnect", ce.Command)
}

func TestStandByWaitsForCalls(t *testing.T) {
	f := &fakeCodec{}
	c, srv := connect(t, f)
	ctx := context.Background()

	_, err := c.Dial(ctx, types.NewAlias(types.AliasSIPURI, "room@example.org"))
	require.NoError(t, err)
	require.NoError(t, c.StandBy(ctx))

	received := srv.Received()
	assert.Equal(t, []string{
		"xCommand Call DisconnectAll",
		"xStatus Call",
		"xStatus Call",
		"xStatus Call",
		"xCommand Standby Activate",
	}, received[len(received)-5:])

	status, err := c.GetEndpointStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Standby)
	assert.Empty(t, status.Calls)
}

func TestEndpointCommands(t *testing.T) {
	c, srv := connect(t, &fakeCodec{})
	ctx := context.Background()

	require.NoError(t, c.SetMicrophoneLevel(ctx, 50))
	require.NoError(t, c.SetPlaybackLevel(ctx, 70))
	require.NoError(t, c.ShowMessage(ctx, 5*time.Second, "say \"hi\"\n\tbye"))
	require.NoError(t, c.StartPresentation(ctx))
	require.NoError(t, c.StopPresentation(ctx))
	require.NoError(t, c.ResetDevice(ctx))
	assert.ErrorIs(t, c.EnableVideo(ctx), types.ErrUnsupported)

	received := srv.Received()
	tail := received[len(received)-13:]
	for i := 0; i < microphones; i++ {
		assert.Equal(t, fmt.Sprintf("xConfiguration Audio Input Microphone %d Level: 12", i+1), tail[i])
	}
	assert.Equal(t, []string{
		"xConfiguration Audio Volume: 70",
		`xCommand Message Alert Display Duration: 5 Text: "say 'hi'            bye"`,
		"xCommand Presentation Start",
		"xCommand Presentation Stop",
		"xCommand Boot Action: Restart",
	}, tail[microphones:])
}

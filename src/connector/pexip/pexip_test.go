package pexip

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/types"
)

func newConnector(t *testing.T, fake *fakeInfinity, password string) *Connector {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	addr, err := types.ParseDeviceAddress(srv.URL)
	require.NoError(t, err)
	conn, err := connector.New(connector.Config{
		Name:     "pexip",
		Agent:    Agent,
		Address:  addr,
		Username: "admin",
		Password: password,
		Options:  configs.Options{"timeout": "5s"},
	})
	require.NoError(t, err)
	return conn.(*Connector)
}

func TestCheckWorkers(t *testing.T) {
	v, err := checkWorkers([]byte(`{"objects":[{"version":"31 31.1"},{"version":"18 18.0"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "31 31.1", v)

	_, err = checkWorkers([]byte(`{"objects":[]}`))
	assert.EqualError(t, err, "no conference nodes available")
	_, err = checkWorkers([]byte(`{"objects":[{"version":"31 31.1"},{"version":"17 17.2"}]}`))
	assert.ErrorContains(t, err, "too old")
	_, err = checkWorkers([]byte(`{"objects":[{"version":"unknown"}]}`))
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	c := newConnector(t, newFakeInfinity(), "secret")
	ctx := context.Background()

	_, err := c.ListRooms(ctx)
	assert.True(t, errors.Is(err, types.ErrNotConnected))

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, types.LooselyConnected, c.GetConnectionState(ctx))
	assert.Equal(t, "31 31.1", c.GetDeviceInfo().SoftwareVersion)
	assert.Equal(t, []string{"RoomService", "MonitoringService"}, connector.Capabilities(c))

	load, err := c.GetDeviceLoadInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, load.CPULoad)
	assert.InDelta(t, 30.0, *load.CPULoad, 0.001)

	require.NoError(t, c.Disconnect(ctx))
	assert.Equal(t, types.Disconnected, c.GetConnectionState(ctx))
}

func TestConnect_Failures(t *testing.T) {
	ctx := context.Background()

	c := newConnector(t, newFakeInfinity(), "wrong")
	assert.Error(t, c.Connect(ctx))
	assert.Equal(t, types.Disconnected, c.State())

	fake := newFakeInfinity()
	fake.workers = 0
	c = newConnector(t, fake, "secret")
	assert.ErrorContains(t, c.Connect(ctx), "no conference nodes")

	fake = newFakeInfinity()
	fake.version = "16 16.1"
	c = newConnector(t, fake, "secret")
	assert.ErrorContains(t, c.Connect(ctx), "too old")
}

func TestRooms(t *testing.T) {
	fake := newFakeInfinity()
	c := newConnector(t, fake, "secret")
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	room := &types.Room{LicenseCount: 5, Description: "weekly"}
	room.AddAlias(types.AliasRoomName, "shongo-test")
	room.AddAlias(types.AliasSIPURI, "shongo-test@pexip.example.org")
	room.AddSetting(&types.PexipRoomSetting{PIN: "1234", GuestPIN: "5678"})

	id, err := c.CreateRoom(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	stored, ok := fake.room(id)
	require.True(t, ok)
	assert.Equal(t, "conference", stored["service_type"])
	assert.Equal(t, "1234", stored["pin"])
	assert.Equal(t, true, stored["allow_guests"])
	tag, _ := stored["service_tag"].(string)
	_, err = uuid.FromString(tag)
	assert.NoError(t, err)

	got, err := c.GetRoom(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "shongo-test", got.Name())
	assert.Equal(t, 5, got.LicenseCount)
	assert.Equal(t, "weekly", got.Description)
	sip, ok := got.GetAlias(types.AliasSIPURI)
	require.True(t, ok)
	assert.Equal(t, "shongo-test@pexip.example.org", sip.Value)
	assert.True(t, got.HasTechnology(types.TechnologySIP))
	require.NotNil(t, got.PexipSetting())
	assert.Equal(t, "5678", got.PexipSetting().GuestPIN)

	rooms, err := c.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "shongo-test", rooms[0].Name)
	assert.Equal(t, "shongo-test@pexip.example.org", rooms[0].Alias)

	stats, err := c.GetUsageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RoomCount)

	got.LicenseCount = 10
	got.ID = id
	newID, err := c.ModifyRoom(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, id, newID)
	stored, _ = fake.room(id)
	assert.EqualValues(t, 10, stored["participant_limit"])

	require.NoError(t, c.DeleteRoom(ctx, id))
	assert.True(t, errors.Is(c.DeleteRoom(ctx, id), types.ErrNotFound))
	_, err = c.GetRoom(ctx, id)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCreateRoom_Invalid(t *testing.T) {
	c := newConnector(t, newFakeInfinity(), "secret")
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.CreateRoom(ctx, &types.Room{})
	assert.EqualError(t, err, "room name must be filled")

	room := &types.Room{}
	room.AddAlias(types.AliasRoomName, "x")
	room.AddAlias(types.AliasH323E164, "950087001")
	_, err = c.CreateRoom(ctx, room)
	assert.ErrorContains(t, err, "unrecognized alias")
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "42", lastSegment("https://pexip/api/admin/configuration/v1/conference/42/"))
	assert.Equal(t, "42", lastSegment("42"))
	assert.Equal(t, "", lastSegment(""))
}

func TestSummaryAlias(t *testing.T) {
	o := gjson.Parse(`{"name":"room","aliases":[{"alias":"room","protocol":""},{"alias":"room@pexip.example.org","protocol":"sip"}]}`)
	assert.Equal(t, "room@pexip.example.org", summaryAlias(o))
	o = gjson.Parse(`{"aliases":[{"alias":"room"},{"alias":"room@pexip.example.org"}]}`)
	assert.Equal(t, "room@pexip.example.org", summaryAlias(o))
	o = gjson.Parse(`{"aliases":[{"alias":"room"}]}`)
	assert.Equal(t, "room", summaryAlias(o))
	assert.Equal(t, "", summaryAlias(gjson.Parse(`{"aliases":[]}`)))
}

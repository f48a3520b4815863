package clearsea

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

type fakeService struct {
	mu        sync.Mutex
	token     string
	logins    int
	accounts  map[string]map[string]string
	endpoints map[string]string
}

func newFakeService() *fakeService {
	return &fakeService{
		token:     "t1",
		accounts:  map[string]map[string]string{},
		endpoints: map[string]string{},
	}
}

// expire 让当前令牌失效
func (f *fakeService) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = "t2"
}

func (f *fakeService) account(id string) (map[string]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	return a, ok
}

func (f *fakeService) endpoint(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoints[id]
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := r.URL.Query()
	if r.URL.Path == accessTokenPath {
		if q.Get("grant_type") != "password" || q.Get("username") != "admin" || q.Get("password") != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.logins++
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": f.token, "expires_in": 3600})
		return
	}
	if q.Get("access_token") != f.token || r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.URL.Path == statusPath:
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case r.Method == http.MethodPost && r.URL.Path == accountsPath:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := f.accounts[body["userID"]]; ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.accounts[body["userID"]] = body
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == endpointsPath:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.endpoints[body["userID"]] = body["dialString"]
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, accountsPath+"/"):
		id := strings.TrimPrefix(r.URL.Path, accountsPath+"/")
		account, ok := f.accounts[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.accounts, id)
			delete(f.endpoints, id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"userID":     account["userID"],
			"groupName":  account["groupName"],
			"dialString": f.endpoints[id],
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestDialString(t *testing.T) {
	s, err := DialString(types.AliasH323E164, "950087001", "gk.example.org")
	require.NoError(t, err)
	assert.Equal(t, "h323:950087001@gk.example.org", s)
	s, err = DialString(types.AliasSIPURI, "950087001", "gk.example.org")
	require.NoError(t, err)
	assert.Equal(t, "sip:950087001@gk.example.org", s)
	_, err = DialString(types.AliasAdobeConnectURI, "x", "gk")
	assert.Error(t, err)
}

func TestClient(t *testing.T) {
	fake := newFakeService()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "secret", "gk.example.org", transport.HTTPOptions{Timeout: 5 * time.Second})
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	require.NoError(t, c.Status(ctx))

	id, err := c.CreateAlias(ctx, types.AliasH323E164, "950087001", "shongo-test")
	require.NoError(t, err)
	assert.Equal(t, "shongo-test", id)
	account, ok := fake.account("shongo-test")
	require.True(t, ok)
	assert.Equal(t, "Aliases", account["groupName"])
	assert.Equal(t, "User", account["type"])
	assert.Equal(t, "h323:950087001@gk.example.org", fake.endpoint("shongo-test"))

	full, err := c.GetFullAlias(ctx, "shongo-test")
	require.NoError(t, err)
	assert.Contains(t, full, "h323:950087001@gk.example.org")

	// 令牌过期后自动重新登录
	fake.expire()
	require.NoError(t, c.ModifyAlias(ctx, "shongo-test", "shongo-new", types.AliasH323E164, "950087002"))
	fake.mu.Lock()
	assert.Equal(t, 2, fake.logins)
	fake.mu.Unlock()
	_, ok = fake.account("shongo-test")
	assert.False(t, ok)
	assert.Equal(t, "h323:950087002@gk.example.org", fake.endpoint("shongo-new"))

	require.NoError(t, c.DeleteAlias(ctx, "shongo-new"))
	err = c.DeleteAlias(ctx, "shongo-new")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = c.GetFullAlias(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	// 旧账号不存在时修改等同于创建
	require.NoError(t, c.ModifyAlias(ctx, "missing", "shongo-other", types.AliasSIPURI, "950087003"))
	assert.Equal(t, "sip:950087003@gk.example.org", fake.endpoint("shongo-other"))
}

func TestClient_LoginFailed(t *testing.T) {
	srv := httptest.NewServer(newFakeService())
	defer srv.Close()
	c := NewClient(srv.URL, "admin", "wrong", "gk", transport.HTTPOptions{Timeout: 5 * time.Second})
	assert.Error(t, c.Login(context.Background()))
}

func TestConnector(t *testing.T) {
	srv := httptest.NewServer(newFakeService())
	defer srv.Close()
	addr, err := types.ParseDeviceAddress(srv.URL)
	require.NoError(t, err)

	conn, err := connector.New(connector.Config{
		Name:     "clearsea",
		Agent:    Agent,
		Address:  addr,
		Username: "admin",
		Password: "secret",
		Options:  configs.Options{"gatekeeper": "gk.example.org", "timeout": "5s"},
	})
	require.NoError(t, err)
	c := conn.(*Connector)
	ctx := context.Background()

	_, err = c.CreateAlias(ctx, types.AliasH323E164, "1", "room")
	assert.True(t, errors.Is(err, types.ErrNotConnected))

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, types.Connected, c.GetConnectionState(ctx))
	assert.Equal(t, []string{"AliasService"}, connector.Capabilities(c))

	id, err := c.CreateAlias(ctx, types.AliasH323E164, "950087001", "room")
	require.NoError(t, err)
	full, err := c.GetFullAlias(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, full, "950087001")
	require.NoError(t, c.DeleteAlias(ctx, id))

	require.NoError(t, c.Disconnect(ctx))
	assert.Equal(t, types.Disconnected, c.GetConnectionState(ctx))
}

func TestConnector_MissingGatekeeper(t *testing.T) {
	c, err := New(connector.Config{Name: "clearsea", Agent: Agent, Address: types.DeviceAddress{Host: "localhost"}})
	require.NoError(t, err)
	err = c.Connect(context.Background())
	var missing *configs.ErrMissingOption
	assert.True(t, errors.As(err, &missing))
}

package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
debug: true
rpc:
  enable: true
  bind: 127.0.0.1:8090
storage:
  root: /tmp
  min_free_space: 2GiB
connectors:
  - name: mcu
    agent: cisco-mcu
    address:
      host: mcu.example.org
      ssl: true
    username: admin
    password: ${SHONGO_TEST_MCU_PASSWORD}
    options:
      room-number-extraction-from-h323-number: '^\d{5}(\d{4})$'
      participants:
        - address: 950081038
          hide: true
      alias-service:
        host: clearsea.example.org
  - name: tcs
    agent: cisco-tcs
    address:
      host: tcs.example.org
    options:
      recordings-check-period: PT5M
      min-free-space: 500MB
`

func TestNewConfigWithBytes(t *testing.T) {
	t.Setenv("SHONGO_TEST_MCU_PASSWORD", "s3cret")
	cfg, err := NewConfigWithBytes([]byte(sampleConfig))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, int64(2*1024*1024*1024), cfg.MinFreeSpaceBytes())
	assert.Equal(t, 30*time.Second, cfg.Manager.ConnectRetryPeriod)
	require.Len(t, cfg.Connectors, 2)

	mcu, err := cfg.GetConnector("mcu")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", mcu.Password)
	assert.True(t, mcu.Address.DeviceAddress().SSL)

	re, err := mcu.Options.Pattern("room-number-extraction-from-h323-number")
	require.NoError(t, err)
	assert.Equal(t, []string{"950087001", "7001"}, re.FindStringSubmatch("950087001"))

	participants := mcu.Options.List("participants")
	require.Len(t, participants, 1)
	assert.Equal(t, "950081038", participants[0].String("address", ""))
	assert.True(t, participants[0].Bool("hide", false))
	assert.Equal(t, "clearsea.example.org", mcu.Options.Sub("alias-service").String("host", ""))
	assert.Nil(t, mcu.Options.Sub("missing"))

	tcs, err := cfg.GetConnector("tcs")
	require.NoError(t, err)
	d, err := tcs.Options.Duration("recordings-check-period", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
	n, err := tcs.Options.Bytes("min-free-space", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500*1000*1000), n)

	_, err = cfg.GetConnector("nope")
	assert.Error(t, err)
}

func TestExpandEnvKeepsUnknownPlaceholders(t *testing.T) {
	out := expandEnv([]byte(`a: ${SHONGO_DEFINITELY_UNSET} b: ^(\d+)$`))
	assert.Equal(t, `a: ${SHONGO_DEFINITELY_UNSET} b: ^(\d+)$`, string(out))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("SHONGO_TEST_FROM_ENV_FILE=yes\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SHONGO_TEST_FROM_ENV_FILE") })
	require.NoError(t, LoadEnvFile(file))
	assert.Equal(t, "yes", os.Getenv("SHONGO_TEST_FROM_ENV_FILE"))
	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"5m":      5 * time.Minute,
		"PT5M":    5 * time.Minute,
		"PT1H30M": 90 * time.Minute,
		"P1DT2S":  24*time.Hour + 2*time.Second,
		"PT0.5S":  500 * time.Millisecond,
		"1h2m3s":  time.Hour + 2*time.Minute + 3*time.Second,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "P", "PT", "five minutes"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	assert.Equal(t, "x", o.String("k", "x"))
	n, err := o.Int("k", 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = o.StringRequired("alias")
	var missing *ErrMissingOption
	assert.ErrorAs(t, err, &missing)
	re, err := o.Pattern("k")
	assert.NoError(t, err)
	assert.Nil(t, re)

	o = Options{"timeout": "abc", "n": "12", "list": []any{"a", 1}}
	_, err = o.Duration("timeout", time.Second)
	assert.Error(t, err)
	n, err = o.Int("n", 0)
	assert.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, []string{"a", "1"}, o.Strings("list"))
}

func TestOptionsList(t *testing.T) {
	o := Options{"participants": []any{
		Options{"address": "950081038"},
		map[string]any{"address": "950081039", "hide": true},
		"ignored",
	}}
	list := o.List("participants")
	require.Len(t, list, 2)
	assert.Equal(t, "950081038", list[0].String("address", ""))
	assert.True(t, list[1].Bool("hide", false))
	assert.Nil(t, o.List("missing"))
}

func TestRPC_Verify(t *testing.T) {
	var rpc *RPC
	assert.NoError(t, rpc.verify())
	rpc = new(RPC)
	rpc.Bind = "foo@bar"
	assert.NoError(t, rpc.verify())
	rpc.Enable = true
	assert.Error(t, rpc.verify())
}

func TestConfig_Verify(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Verify())
	cfg = NewConfig()
	assert.NoError(t, cfg.Verify())
	cfg.Connectors = []Connector{{Name: "a", Agent: "pexip", Address: Address{Host: "h"}}}
	assert.NoError(t, cfg.Verify())
	cfg.Connectors = append(cfg.Connectors, Connector{Name: "a", Agent: "pexip", Address: Address{Host: "h"}})
	assert.Error(t, cfg.Verify())
	cfg.Connectors = []Connector{{Name: "a", Address: Address{Host: "h"}}}
	assert.Error(t, cfg.Verify())
	cfg.Connectors = nil
	cfg.RPC.Enable = false
	assert.Error(t, cfg.Verify())
	cfg.RPC.Enable = true
	cfg.Storage.MinFreeSpace = "lots"
	assert.Error(t, cfg.Verify())
}

func TestSetDebug(t *testing.T) {
	SetCurrentConfig(NewConfig())
	t.Cleanup(func() { SetCurrentConfig(nil) })
	SetDebug(true)
	assert.True(t, IsDebug())
	assert.True(t, GetCurrentConfig().Debug)
	SetDebug(false)
	assert.False(t, IsDebug())
}

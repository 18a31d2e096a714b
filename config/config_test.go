package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, TransportUDP, cfg.Transport.Network())
	assert.Equal(t, uint32(7400), cfg.Discovery.Ports.Base)
	assert.Equal(t, uint32(250), cfg.Discovery.Ports.DomainGain)
	assert.Equal(t, uint32(2), cfg.Discovery.Ports.ParticipantGain)
	assert.Equal(t, uint32(11), cfg.Discovery.Ports.D3)

	t.Log("✅ NewConfig 测试通过")
}

func TestConfig_ValidateNil(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Validate())
}

// TestTransportConfig 测试传输配置
func TestTransportConfig(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		assert.Equal(t, TransportDefault, cfg.Selector)
		assert.True(t, cfg.AllowMulticast)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Validate_UnknownSelector", func(t *testing.T) {
		cfg := DefaultTransportConfig().WithSelector("shm")
		assert.Error(t, cfg.Validate())
	})

	t.Run("Validate_BadExternalAddress", func(t *testing.T) {
		cfg := DefaultTransportConfig().WithExternalAddress("not-an-ip")
		assert.Error(t, cfg.Validate())
	})

	t.Run("Validate_DiffServRange", func(t *testing.T) {
		assert.Error(t, DefaultTransportConfig().WithDiffServ(256).Validate())
		assert.NoError(t, DefaultTransportConfig().WithDiffServ(46).Validate())
	})

	t.Run("Validate_MulticastInterfaces", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.MulticastInterfaces = "some"
		assert.Error(t, cfg.Validate())
		cfg.MulticastInterfaces = MulticastInterfacesAll
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Network", func(t *testing.T) {
		assert.Equal(t, TransportUDP6, DefaultTransportConfig().WithSelector(TransportUDP6).Network())
		assert.Equal(t, TransportUDP, DefaultTransportConfig().WithSelector("").Network())
	})

	t.Log("✅ TransportConfig 测试通过")
}

// TestDiscoveryConfig 测试发现配置
func TestDiscoveryConfig(t *testing.T) {
	tests := []struct {
		index string
		mode  IndexMode
		idx   uint32
		err   bool
	}{
		{"", IndexModeNone, 0, false},
		{"none", IndexModeNone, 0, false},
		{"AUTO", IndexModeAuto, 0, false},
		{"3", IndexModeManual, 3, false},
		{"-1", IndexModeNone, 0, true},
		{"x", IndexModeNone, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			mode, idx, err := DefaultDiscoveryConfig().WithParticipantIndex(tt.index).IndexMode()
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, mode)
			assert.Equal(t, tt.idx, idx)
		})
	}
}

func TestDiscoveryConfig_PortRange(t *testing.T) {
	// 7400 + 250*232 + 11 + 2*9 = 65429
	assert.NoError(t, DefaultDiscoveryConfig().WithDomainID(232).Validate())

	// 7400 + 250*233 = 65650
	assert.Error(t, DefaultDiscoveryConfig().WithDomainID(233).Validate())

	// 固定索引过大
	cfg := DefaultDiscoveryConfig().WithParticipantIndex("30000")
	assert.Error(t, cfg.Validate())

	t.Log("✅ 端口映射越界被拒绝")
}

func TestLogConfig(t *testing.T) {
	assert.NoError(t, DefaultLogConfig().Validate())
	assert.Error(t, LogConfig{Level: "loud"}.Validate())
	assert.Error(t, LogConfig{Level: "info", Format: "xml"}.Validate())
}

func TestWatcherConfig(t *testing.T) {
	assert.NoError(t, DefaultWatcherConfig().Validate())
	assert.Error(t, WatcherConfig{Enable: true}.Validate())
	assert.NoError(t, WatcherConfig{Enable: false}.Validate())
}

// ============================================================================
//                              JSON
// ============================================================================

func TestFromJSON_KeepsDefaults(t *testing.T) {
	cfg, err := FromJSON([]byte(`{
		"transport": {"selector": "udp6", "diffserv": 46},
		"discovery": {"domain_id": 3},
		"watcher": {"poll_interval": "5s"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, TransportUDP6, cfg.Transport.Selector)
	assert.Equal(t, 46, cfg.Transport.DiffServ)
	assert.Equal(t, uint32(3), cfg.Discovery.DomainID)
	assert.Equal(t, uint32(7400), cfg.Discovery.Ports.Base, "未出现的字段保留默认值")
	assert.Equal(t, 5*time.Second, cfg.Watcher.PollInterval.Duration())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"log": {"level": "debug"}}`), 0o600))
	cfg, err := LoadFromFile(good)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"transport": {"selector": "shm"}}`), 0o600))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)

	_, err = LoadFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestConfig_ToJSONRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Capture.PcapFile = "/tmp/ddsi.pcap"

	data, err := cfg.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
	assert.True(t, back.Capture.Enabled())
}

func TestCloneConfig(t *testing.T) {
	cfg := NewConfig()
	cloned := CloneConfig(cfg)
	cloned.Transport.Selector = TransportTCP
	assert.Equal(t, TransportDefault, cfg.Transport.Selector)
	assert.Nil(t, CloneConfig(nil))
}

// TestDurations 测试 Duration JSON 编解码
func TestDurations(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

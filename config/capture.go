package config

// CaptureConfig 抓包配置
type CaptureConfig struct {
	// PcapFile 抓包输出文件，空表示不抓包
	PcapFile string `json:"pcap_file,omitempty"`
}

// DefaultCaptureConfig 返回默认抓包配置
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{}
}

// Enabled 是否启用抓包
func (c CaptureConfig) Enabled() bool {
	return c.PcapFile != ""
}

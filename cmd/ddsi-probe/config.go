package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-ddsi/config"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
)

// 环境变量（均使用 DDSI_ 前缀）
const (
	envPrefix           = "DDSI_"
	envTransport        = "TRANSPORT"
	envDomainID         = "DOMAIN_ID"
	envParticipantIndex = "PARTICIPANT_INDEX"
	envExternalAddress  = "EXTERNAL_ADDRESS"
)

// ============================================================================
//                              环境变量覆盖
// ============================================================================

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func applyEnvOverrides(cfg *config.Config) error {
	if v := getenv(envTransport); v != "" {
		cfg.Transport = cfg.Transport.WithSelector(v)
	}

	if v := getenv(envDomainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, envDomainID, err)
		}
		cfg.Discovery = cfg.Discovery.WithDomainID(uint32(id))
	}

	if v := getenv(envParticipantIndex); v != "" {
		cfg.Discovery = cfg.Discovery.WithParticipantIndex(v)
	}

	if v := getenv(envExternalAddress); v != "" {
		cfg.Transport = cfg.Transport.WithExternalAddress(v)
	}

	if v := os.Getenv(log.EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(log.EnvLogFormat); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// Package main 提供 ddsi-probe 命令行工具
//
// ddsi-probe 按配置创建参与者并打印收到的报文，或向指定定位器发送探测报文，
// 用于检查端口映射、组播与防火墙设置。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-ddsi"
	"github.com/dep2p/go-ddsi/config"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
)

var logger = log.Logger("ddsi/cmd")

// ============================================================================
// 命令行参数
// ============================================================================
//
//   命令行参数：这次运行的覆盖项
//   JSON 配置文件：持久化配置
//
// ============================================================================
var (
	configFile = flag.String("config", "", "配置文件路径")
	transport  = flag.String("transport", "", "传输选择 (default/udp/udp6/tcp/tcp6)")
	domainID   = flag.Int("domain", -1, "域编号（-1 = 使用配置）")
	index      = flag.String("index", "", "参与者索引 (none/auto/数字)")
	external   = flag.String("external-address", "", "对外通告地址")
	noMC       = flag.Bool("no-multicast", false, "禁用组播")

	// 发送模式
	sendTo   = flag.String("send", "", "目标定位器，如 udp/192.168.1.7:7410（空 = 接收模式）")
	message  = flag.String("msg", "ddsi-probe", "发送内容")
	count    = flag.Int("count", 1, "发送次数")
	perSec   = flag.Float64("rate", 10, "每秒发送上限")
	pcapFile = flag.String("pcap", "", "抓包输出文件")

	// 观测
	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标监听地址，如 :9464")
	logLevel    = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	logFormat   = flag.String("log-format", "", "日志格式 (text/json)")

	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}
	if *showHelp {
		printHelp()
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	setupLogging(cfg.Log)

	opts := []ddsi.Option{ddsi.WithConfig(cfg)}

	var reg *prometheus.Registry
	if *metricsAddr != "" {
		reg = prometheus.NewRegistry()
		opts = append(opts, ddsi.WithRegisterer(reg))
	}

	svc, err := ddsi.New(opts...)
	if err != nil {
		return fmt.Errorf("创建服务失败: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("启动 ddsi-probe", "version", ddsi.Version, "commit", ddsi.GitCommit, "id", svc.ID())
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(stopCtx)
	}()

	if reg != nil {
		srv := serveMetrics(*metricsAddr, reg)
		defer func() { _ = srv.Close() }()
	}

	if *sendTo != "" {
		err = send(ctx, svc)
	} else {
		err = listen(ctx, svc)
	}
	printStats(svc)
	return err
}

// buildConfig 构建配置
//
// 优先级（从高到低）：命令行参数、环境变量、配置文件、默认值。
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFromFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if *transport != "" {
		cfg.Transport = cfg.Transport.WithSelector(*transport)
	}
	if *domainID >= 0 {
		cfg.Discovery = cfg.Discovery.WithDomainID(uint32(*domainID))
	}
	if *index != "" {
		cfg.Discovery = cfg.Discovery.WithParticipantIndex(*index)
	}
	if *external != "" {
		cfg.Transport = cfg.Transport.WithExternalAddress(*external)
	}
	if *noMC {
		cfg.Transport = cfg.Transport.WithMulticast(false)
	}
	if *pcapFile != "" {
		cfg.Capture.PcapFile = *pcapFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enable = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(c config.LogConfig) {
	log.Setup(os.Stderr, c.SlogLevel(), c.Format)
}

// serveMetrics 在后台提供 /metrics
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "addr", addr, "error", err)
		}
	}()
	fmt.Printf("📈 指标: http://%s/metrics\n", addr)
	return srv
}

// ============================================================================
// 接收模式
// ============================================================================

// listen 创建参与者并打印各端点收到的报文
func listen(ctx context.Context, svc *ddsi.Service) error {
	p, err := svc.NewParticipant(ctx)
	if err != nil {
		return fmt.Errorf("创建参与者失败: %w", err)
	}
	printParticipant(svc, p)

	slots := []ddsi.Slot{
		ddsi.SlotDiscoveryMulticast,
		ddsi.SlotDiscoveryUnicast,
		ddsi.SlotDataMulticast,
		ddsi.SlotDataUnicast,
	}
	for _, slot := range slots {
		if c := p.Conn(slot); c != nil {
			go readLoop(svc, slot, c)
		}
		if l := p.Listener(slot); l != nil {
			go acceptLoop(svc, slot, l)
		}
	}

	fmt.Println("等待报文，按 Ctrl+C 退出")
	<-ctx.Done()
	fmt.Println("\n正在关闭...")
	return nil
}

func readLoop(svc *ddsi.Service, slot ddsi.Slot, c *ddsi.Conn) {
	buf := make([]byte, svc.MaxMessageSize())
	for {
		res, err := c.Read(buf)
		if err != nil {
			if transportif.IsBenign(err) {
				return
			}
			logger.Debug("读取失败", "slot", slot.String(), "error", err)
			continue
		}
		suffix := ""
		if res.Truncated {
			suffix = " (截断)"
		}
		fmt.Printf("[%s] %s %d 字节%s: %q\n",
			slot, svc.FormatLocator(res.Src, true), res.N, suffix, preview(buf[:res.N]))
	}
}

func acceptLoop(svc *ddsi.Service, slot ddsi.Slot, l *ddsi.Listener) {
	for {
		c, err := l.Accept()
		if err != nil {
			logger.Debug("接受连接结束", "slot", slot.String(), "error", err)
			return
		}
		if peer, ok := c.PeerLocator(); ok {
			fmt.Printf("[%s] 新连接 %s\n", slot, svc.FormatLocator(peer, true))
		}
		go func() {
			defer c.Free()
			readLoop(svc, slot, c)
		}()
	}
}

// ============================================================================
// 发送模式
// ============================================================================

// send 按速率向目标发送 count 个报文
func send(ctx context.Context, svc *ddsi.Service) error {
	dst, err := svc.ParseLocator(*sendTo)
	if err != nil {
		return err
	}
	c, err := svc.CreateConnFor(dst, 0)
	if err != nil {
		return fmt.Errorf("创建连接失败: %w", err)
	}
	defer c.Free()

	limiter := rate.NewLimiter(rate.Limit(*perSec), 1)
	for i := 0; i < *count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		n, err := c.Write(dst, []byte(*message))
		if err != nil {
			if transportif.IsBenign(err) {
				logger.Warn("目标不可达", "dst", *sendTo, "error", err)
				continue
			}
			return fmt.Errorf("发送失败: %w", err)
		}
		fmt.Printf("→ %s %d 字节 (#%d)\n", svc.FormatLocator(dst, true), n, i+1)
	}
	return nil
}

// ============================================================================
// 输出
// ============================================================================

func printParticipant(svc *ddsi.Service, p *ddsi.Participant) {
	fmt.Println()
	fmt.Printf("📦 %s\n", ddsi.VersionInfo())
	fmt.Printf("   传输:   %s\n", p.Factory().Name())
	if idx, ok := p.Index(); ok {
		fmt.Printf("   索引:   %d\n", idx)
	} else {
		fmt.Println("   索引:   none")
	}
	if g, ok := p.SPDPGroup(); ok {
		fmt.Printf("   SPDP:   %s\n", svc.FormatLocator(g, true))
	}
	for _, slot := range []ddsi.Slot{
		ddsi.SlotDiscoveryMulticast,
		ddsi.SlotDiscoveryUnicast,
		ddsi.SlotDataMulticast,
		ddsi.SlotDataUnicast,
	} {
		if loc, ok := p.Locator(slot); ok {
			fmt.Printf("   %-20s %s\n", slot.String()+":", svc.FormatLocator(loc, true))
		}
	}
	fmt.Println()
}

// printStats 打印各传输的收发统计（指标关闭时不输出）
func printStats(svc *ddsi.Service) {
	m := svc.Metrics()
	if m == nil {
		return
	}
	for _, f := range svc.Registry().Factories() {
		st := m.Stats(f.Name())
		if st.PacketsIn == 0 && st.PacketsOut == 0 {
			continue
		}
		fmt.Printf("📊 %-5s 收 %d 个/%d 字节  发 %d 个/%d 字节  (%.1f B/s 入, %.1f B/s 出)\n",
			f.Name(), st.PacketsIn, st.TotalIn, st.PacketsOut, st.TotalOut, st.RateIn, st.RateOut)
	}
}

// preview 截取报文开头用于显示
func preview(b []byte) []byte {
	const limit = 64
	if len(b) > limit {
		return b[:limit]
	}
	return b
}

func printVersion() {
	fmt.Printf("ddsi-probe %s\n", ddsi.Version)
	if ddsi.GitCommit != "" {
		fmt.Printf("  commit: %s\n", ddsi.GitCommit)
	}
	if ddsi.BuildDate != "" {
		fmt.Printf("  built:  %s\n", ddsi.BuildDate)
	}
}

func printHelp() {
	fmt.Println("ddsi-probe - DDSI 传输探测工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  ddsi-probe [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  DDSI_TRANSPORT            传输选择")
	fmt.Println("  DDSI_DOMAIN_ID            域编号")
	fmt.Println("  DDSI_PARTICIPANT_INDEX    参与者索引")
	fmt.Println("  DDSI_EXTERNAL_ADDRESS     对外通告地址")
	fmt.Println("  DDSI_LOG_LEVEL            日志级别")
	fmt.Println("  DDSI_LOG_FORMAT           日志格式")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 在域 0 上创建参与者并打印收到的报文")
	fmt.Println("  ddsi-probe -domain 0")
	fmt.Println()
	fmt.Println("  # 向另一台主机的发现单播端口发送 5 个报文")
	fmt.Println("  ddsi-probe -send udp/192.168.1.7:7410 -count 5")
	fmt.Println()
	fmt.Println("  # TCP 传输并导出指标")
	fmt.Println("  ddsi-probe -transport tcp -metrics-addr :9464")
}

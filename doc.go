// Package ddsi 提供 DDSI/RTPS 传输层
//
// go-ddsi 把数据报与流式传输统一在工厂/连接/监听器抽象之下，
// 负责定位器解析、端口映射、组播成员管理以及参与者索引分配。
// 上层的发现与可靠性协议只需面对 Conn 与 Locator。
//
// # 核心概念
//
//   - Service: 传输上下文，持有配置、工厂注册表、接口表、指标与索引池
//   - Factory: 一种传输（udp、udp6、tcp、tcp6），负责创建连接与监听器
//   - Conn: 引用计数的收发端点，Free 之后不可再用
//   - Locator: 传输种类、地址与端口的三元组，文本形式如 udp/239.255.0.1:7400
//   - Participant: 一组按 DDSI 端口映射绑定的发现/数据套接字
//
// # 快速开始
//
//	import "github.com/dep2p/go-ddsi"
//
//	svc, err := ddsi.New(
//	    ddsi.WithTransport("udp"),
//	    ddsi.WithDomainID(0),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop(context.Background())
//
//	p, err := svc.NewParticipant(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conn := p.Conn(ddsi.SlotDiscoveryUnicast)
//	dst, _ := svc.ParseLocator("udp/192.168.1.7:7410")
//	_, err = conn.Write(dst, header, payload)
//
// # 端口映射
//
//	发现组播: PB + DG*domain + d0
//	发现单播: PB + DG*domain + d1 + PG*index
//	数据组播: PB + DG*domain + d2
//	数据单播: PB + DG*domain + d3 + PG*index
//
// 默认 PB=7400、DG=250、PG=2、d0=0、d1=10、d2=1、d3=11。
// 参与者索引为 auto 时从 0 开始尝试，端口被占用则换下一个索引。
//
// # 模块组织
//
//	┌──────────────────────────────────────────────────────────┐
//	│  ddsi.Service                                            │
//	├──────────────────────────────────────────────────────────┤
//	│  participant    端口映射、索引池、重绑定                 │
//	├──────────────────────────────────────────────────────────┤
//	│  transport      注册表、Conn、Listener、Manager          │
//	│  ├── udp        数据报、组播、DiffServ                   │
//	│  └── tcp        长度前缀分帧的流式传输                   │
//	├──────────────────────────────────────────────────────────┤
//	│  netif  mcgroup  idalloc  metrics  pcap                  │
//	└──────────────────────────────────────────────────────────┘
//
// 组件由 Fx 装配，WithFxOptions 可注入额外组件或取出内部组件。
//
// # 接口变化
//
// 启用 Watcher 时，服务监控网络接口；接口变化后所有参与者的
// 单播套接字在原端口上重新绑定，组播成员转移到新的套接字。
package ddsi

// Package transport 实现 DDSI 传输层抽象
//
// 上层协议引擎通过本包收发数据报，而不关心当前使用的是 UDP/IPv4、
// UDP/IPv6 还是 TCP。
//
// # 核心职责
//
//   - 工厂注册表：按名称、名称前缀、定位器类型或默认值查找传输工厂
//   - 定位器编解码：[<transport>/]<address>[:<port>]
//   - 连接与监听器生命周期：原子引用计数，CAS 关闭，关闭唤醒阻塞读取
//   - Manager：按配置创建并注册 udp / udp6 / tcp / tcp6 工厂
//
// # 使用示例
//
//	reg := transport.NewRegistry()
//	_ = reg.Register(udp.New(udp.Config{}))
//
//	loc, err := reg.ParseLocator("udp/239.255.0.1:7400")
//	f, _ := reg.Default()
//	ep, err := f.CreateConn(0, transportif.QoS{})
//	conn := transport.NewConn(f, ep, false)
//	defer conn.Free()
//
//	n, err := conn.Write(loc, header, body)
//
// # 生命周期
//
// Conn 创建时引用计数为 1。Close 只有第一次调用生效；
// 计数归零的 Release 调用执行端点的释放钩子，并从所属 Listener 中摘除。
// Free 等价于 Close 后 Release。
//
// # Fx 模块集成
//
//	app := fx.New(
//	    metrics.Module,
//	    pcap.Module,
//	    netif.Module,
//	    transport.Module(),
//	    fx.Invoke(func(reg *transport.Registry) {
//	        // 使用注册表
//	    }),
//	)
//
// 子包：
//
//   - ipaddr：IP 地址与定位器互转、邻近判断
//   - mcgroup：组播成员关系记账、转移与重新加入
//   - udp：UDP 传输
//   - tcp：TCP 流式传输
package transport

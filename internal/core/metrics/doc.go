// Package metrics 提供传输层监控指标
//
// Transport 以 Prometheus 指标暴露每种传输的收发统计，
// 同时保留按传输的速率计算器，供日志与诊断读取快照：
//   - 报文/字节计数（发送、接收）
//   - 截断的数据报
//   - 写入错误（按错误类别）
//   - 打开的连接数
//   - 已分配的参与者索引数
//
// # 快速开始
//
//	m := metrics.NewTransport("ddsi", nil)
//	_ = m.Register(prometheus.DefaultRegisterer)
//
//	m.Sent("udp", 128)
//	m.Received("udp", 64)
//
//	stats := m.Stats("udp")
//	fmt.Printf("In: %d, Out: %d\n", stats.TotalIn, stats.TotalOut)
//
// # 空值
//
// *Transport 的所有方法对 nil 接收者安全，指标关闭时传输可以直接传 nil。
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module,
//	    fx.Invoke(func(m *metrics.Transport) { ... }),
//	)
//
// Registerer 可通过 fx 可选注入；未注入时指标只在进程内计数。
//
// # 并发安全
//
// Prometheus 向量自身并发安全；速率计算器由各自的锁保护。
package metrics

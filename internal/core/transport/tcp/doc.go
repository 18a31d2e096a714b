// Package tcp 实现 DDSI 的 TCP 流式传输（tcp / tcp6）
//
// TCP 传输用于 UDP 被防火墙阻止的场景，不支持组播。
//
// # 特性
//
//   - 面向连接的流式传输，经由 transport.Listener 接受入站连接
//   - 每条消息一帧：4 字节大端长度前缀 + 负载
//   - 客户端连接在第一次写入时拨号，之后只能发往同一对端
//
// # 定位器格式
//
//	tcp/10.0.0.1:7410
//	tcp6/[fd00::1]:7410
//
// # 使用示例
//
//	f := tcp.New(tcp.Config{Selector: "tcp"})
//	acc, err := f.CreateListener(7410, transportif.QoS{})
//
// 帧大于读缓冲区时多余部分被丢弃，ReadResult.Truncated 置位。
package tcp

// Package udp 实现 DDSI 的 UDP 传输（udp / udp6）
//
// # 特性
//
//   - 无连接数据报传输，IPv4 与 IPv6 各一个工厂实例
//   - 组播加入/离开（任意源与源特定组播）
//   - TOS / Traffic Class、组播回环、TTL 设置
//   - 截断检测、写入错误分类与重试
//
// # 定位器格式
//
//	udp/239.255.0.1:7400
//	udp6/[ff02::ffff:239.255.0.1]:7400
//
// # 使用示例
//
//	f := udp.New(udp.Config{Selector: "udp"})
//	ep, err := f.CreateConn(0, transportif.QoS{})
//
// 工厂可被多个使用者共享：Acquire 增加使用者，Close 减少，
// 最后一个使用者关闭时清空组播成员关系记录。
package udp

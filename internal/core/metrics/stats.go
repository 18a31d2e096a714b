package metrics

// Stats 单个传输的统计快照
//
// TotalIn/TotalOut 为累计字节数，RateIn/RateOut 为最近 60 秒的平均字节速率。
type Stats struct {
	TotalIn    int64   // 总入站字节
	TotalOut   int64   // 总出站字节
	RateIn     float64 // 入站速率（字节/秒）
	RateOut    float64 // 出站速率（字节/秒）
	PacketsIn  int64   // 入站报文数
	PacketsOut int64   // 出站报文数
}

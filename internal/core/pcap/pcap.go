// Package pcap 把收发的数据报写入 pcap 抓包文件
//
// 每个数据报被封装成原始 IP（LINKTYPE_RAW）+ UDP 报文写入，
// 可直接用 Wireshark 打开。写入失败只记录日志，不影响收发。
package pcap

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/dep2p/go-ddsi/pkg/lib/log"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("core/pcap")

// snapLen 抓包长度上限
const snapLen = 65535

// maxPayload 能封装进一个 IP 报文的最大 UDP 负载
const maxPayload = 65535 - 20 - 8

// Sink 抓包接收端
type Sink interface {
	// Sent 记录从 src 发往 dst 的数据报
	Sent(src, dst types.Locator, payload []byte)

	// Received 记录从 src 收到、发往 dst 的数据报
	Received(src, dst types.Locator, payload []byte)
}

// Nop 不记录任何内容的 Sink
type Nop struct{}

// Sent 实现 Sink
func (Nop) Sent(types.Locator, types.Locator, []byte) {}

// Received 实现 Sink
func (Nop) Received(types.Locator, types.Locator, []byte) {}

// ============================================================================
//                              Writer
// ============================================================================

// Writer 写 pcap 文件的 Sink
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	now    func() time.Time
	errs   int
}

// 确保实现接口
var _ Sink = (*Writer)(nil)

// NewWriter 在 w 上写入文件头并返回 Writer
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	pcw := &Writer{w: pw, now: time.Now}
	if c, ok := w.(io.Closer); ok {
		pcw.closer = c
	}
	return pcw, nil
}

// Create 创建抓包文件
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	logger.Info("抓包已启用", "file", path)
	return w, nil
}

// Sent 实现 Sink
func (w *Writer) Sent(src, dst types.Locator, payload []byte) {
	w.write(src, dst, payload)
}

// Received 实现 Sink
func (w *Writer) Received(src, dst types.Locator, payload []byte) {
	w.write(src, dst, payload)
}

// Close 关闭底层文件
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

func (w *Writer) write(src, dst types.Locator, payload []byte) {
	if len(payload) > maxPayload {
		payload = payload[:maxPayload]
	}

	data, err := encode(src, dst, payload)
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	ci := gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		w.errs++
		if w.errs == 1 {
			logger.Warn("写入抓包文件失败", "err", err)
		}
	}
}

func (w *Writer) fail(err error) {
	w.mu.Lock()
	w.errs++
	first := w.errs == 1
	w.mu.Unlock()
	if first {
		logger.Warn("封装抓包报文失败", "err", err)
	}
}

// encode 把负载封装为 IP + UDP 报文
func encode(src, dst types.Locator, payload []byte) ([]byte, error) {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}

	var network gopacket.SerializableLayer
	if src.Kind.IsIPv6() || dst.Kind.IsIPv6() {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      src.Addr().AsSlice(),
			DstIP:      dst.Addr().AsSlice(),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src.Addr().AsSlice(),
			DstIP:    dst.Addr().AsSlice(),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, network, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

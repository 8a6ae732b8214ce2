package webrtc

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"camgate/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// rtpBridge pumps RTP from the media branch's UDP port into a local track.
// The media graph pushes packets at this port as soon as the branch links;
// packets arriving before the track is negotiated are dropped by pion, which
// is the desired behavior for live video.
type rtpBridge struct {
	conn  *net.UDPConn
	track *webrtc.TrackLocalStaticRTP
	log   *zap.SugaredLogger

	bytes    atomic.Uint64
	packets  atomic.Uint64
	started  time.Time
	stopOnce sync.Once
	done     chan struct{}
}

func newRTPBridge(port int, track *webrtc.TrackLocalStaticRTP, log *zap.SugaredLogger) (*rtpBridge, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, err
	}
	return &rtpBridge{
		conn:  conn,
		track: track,
		log:   log,
		done:  make(chan struct{}),
	}, nil
}

func (b *rtpBridge) start() {
	b.started = time.Now()
	go b.run()
}

func (b *rtpBridge) run() {
	// MTU sized; the graph's payloader never exceeds this.
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}

	for {
		n, _, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-b.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					b.log.Warnw("rtp read failed", "error", err)
				}
			}
			return
		}

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			b.log.Debugw("dropping malformed rtp packet", "error", err)
			continue
		}

		b.bytes.Add(uint64(n))
		b.packets.Add(1)

		if err := b.track.WriteRTP(pkt); err != nil {
			// ErrClosedPipe while the track is unbound; normal pre-connect.
			continue
		}
	}
}

func (b *rtpBridge) stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.conn.Close()
	})
}

func (b *rtpBridge) stats() domain.SessionStats {
	sent := b.bytes.Load()
	elapsed := time.Since(b.started).Seconds()

	var bitrate float64
	if elapsed > 0 {
		bitrate = float64(sent) * 8 / elapsed
	}
	return domain.SessionStats{
		BytesSent:   sent,
		PacketsSent: b.packets.Load(),
		Bitrate:     bitrate,
	}
}

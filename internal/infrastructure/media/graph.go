package media

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	apperrors "camgate/pkg/errors"

	"go.uber.org/zap"
)

// Per-branch send queue depth. A viewer that cannot keep up loses packets
// rather than stalling the distribution point; live video has no use for a
// deep backlog.
const branchQueueDepth = 256

// Graph is the shared media fan-out. The device encoders push their RTP
// streams to fixed local ingest ports; each ingest feeds one distribution
// point that replicates packets to every attached viewer branch. Attach and
// detach happen while the graph runs and never pause other branches.
type Graph struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	running bool
	points  map[string]*distPoint
}

type distPoint struct {
	name string
	conn *net.UDPConn

	mu       sync.RWMutex
	branches map[int]*branchOut
	probes   []probeHook
	bytes    atomic.Uint64
}

type probeHook struct {
	pad string
	cb  ports.ProbeCallback
}

type branchOut struct {
	point     string
	port      int
	conn      *net.UDPConn
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

type branchHandle struct {
	out *branchOut
}

func (h *branchHandle) DistributionPoint() string { return h.out.point }
func (h *branchHandle) Port() int                 { return h.out.port }

type elementHandle struct{ name string }

func (e elementHandle) Name() string { return e.name }

// IngestPorts maps every distribution point to its encoder feed port. The
// layout mirrors the source table: RGB then thermal, main then secondary.
func IngestPorts(base int) map[string]int {
	return map[string]int{
		"dist_main_enc_0": base,
		"dist_main_enc_1": base + 1,
		"dist_sub_enc_0":  base + 2,
		"dist_sub_enc_1":  base + 3,
	}
}

func NewGraph(log *zap.SugaredLogger) *Graph {
	return &Graph{
		log:    log,
		points: make(map[string]*distPoint),
	}
}

// Start opens every ingest listener and begins fan-out. The graph must be
// running before any branch is attached.
func (g *Graph) Start(ingest map[string]int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return apperrors.NewInternalError("media graph already running")
	}

	names := make([]string, 0, len(ingest))
	for name := range ingest {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		port := ingest[name]
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
		if err != nil {
			g.closePointsLocked()
			return apperrors.Wrap(err, apperrors.ErrCodeLinkFailure, "ingest listen failed").
				WithContext("element", name).
				WithContext("port", port)
		}
		p := &distPoint{
			name:     name,
			conn:     conn,
			branches: make(map[int]*branchOut),
		}
		g.points[name] = p
		go g.pump(p)
		g.log.Infow("distribution point up", "element", name, "ingest_port", port)
	}

	g.running = true
	return nil
}

// Stop detaches every branch and closes the ingest listeners.
func (g *Graph) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	points := make([]*distPoint, 0, len(g.points))
	for _, p := range g.points {
		points = append(points, p)
	}
	g.points = make(map[string]*distPoint)
	g.mu.Unlock()

	for _, p := range points {
		p.conn.Close()
		p.mu.Lock()
		branches := make([]*branchOut, 0, len(p.branches))
		for _, b := range p.branches {
			branches = append(branches, b)
		}
		p.branches = make(map[int]*branchOut)
		p.mu.Unlock()
		for _, b := range branches {
			b.shutdown()
		}
	}
	g.log.Infow("media graph stopped")
}

func (g *Graph) closePointsLocked() {
	for _, p := range g.points {
		p.conn.Close()
	}
	g.points = make(map[string]*distPoint)
}

func (g *Graph) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// AttachBranch links a new viewer output to a running distribution point.
func (g *Graph) AttachBranch(distributionPoint string, port int) (ports.BranchHandle, error) {
	g.mu.RLock()
	p, ok := g.points[distributionPoint]
	running := g.running
	g.mu.RUnlock()

	if !running {
		return nil, domain.ErrGraphNotReady
	}
	if !ok {
		return nil, apperrors.Wrap(domain.ErrNoDistribution, apperrors.ErrCodeLinkFailure, "unknown distribution point").
			WithContext("element", distributionPoint)
	}

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeLinkFailure, "branch output dial failed").
			WithContext("port", port)
	}

	b := &branchOut{
		point: distributionPoint,
		port:  port,
		conn:  conn,
		queue: make(chan []byte, branchQueueDepth),
		done:  make(chan struct{}),
	}

	p.mu.Lock()
	if _, dup := p.branches[port]; dup {
		p.mu.Unlock()
		conn.Close()
		return nil, apperrors.NewDuplicateError("branch port already linked").WithContext("port", port)
	}
	p.branches[port] = b
	p.mu.Unlock()

	go b.writeLoop(g.log)
	g.log.Debugw("branch linked", "element", distributionPoint, "port", port)
	return &branchHandle{out: b}, nil
}

// DetachBranch flushes queued packets to the viewer, then closes the branch.
// In-flight data is never cut mid-queue.
func (g *Graph) DetachBranch(handle ports.BranchHandle) error {
	h, ok := handle.(*branchHandle)
	if !ok {
		return apperrors.NewInternalError("foreign branch handle")
	}

	g.mu.RLock()
	p := g.points[h.out.point]
	g.mu.RUnlock()

	if p != nil {
		p.mu.Lock()
		if p.branches[h.out.port] == h.out {
			delete(p.branches, h.out.port)
		}
		p.mu.Unlock()
	}

	h.out.shutdown()
	g.log.Debugw("branch unlinked", "element", h.out.point, "port", h.out.port)
	return nil
}

// QueryElement resolves a distribution point by name.
func (g *Graph) QueryElement(name string) (ports.ElementHandle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.points[name]; ok {
		return elementHandle{name: name}, true
	}
	return nil, false
}

// AddProbe observes traffic on a distribution point's pad.
func (g *Graph) AddProbe(element, pad string, cb ports.ProbeCallback) error {
	g.mu.RLock()
	p, ok := g.points[element]
	g.mu.RUnlock()
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("element %q", element))
	}

	p.mu.Lock()
	p.probes = append(p.probes, probeHook{pad: pad, cb: cb})
	p.mu.Unlock()
	return nil
}

// pump reads the encoder feed and replicates to every branch. A full branch
// queue drops that branch's copy of the packet.
func (g *Graph) pump(p *distPoint) {
	buf := make([]byte, 2048)
	for {
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			// Listener closed on Stop.
			return
		}
		p.bytes.Add(uint64(n))

		data := make([]byte, n)
		copy(data, buf[:n])

		p.mu.RLock()
		for _, b := range p.branches {
			select {
			case b.queue <- data:
			default:
				// Slow viewer; drop rather than stall the point.
			}
		}
		probes := p.probes
		p.mu.RUnlock()

		for _, hook := range probes {
			hook.cb(ports.ProbeInfo{Element: p.name, Pad: hook.pad, Bytes: n})
		}
	}
}

func (b *branchOut) writeLoop(log *zap.SugaredLogger) {
	for {
		select {
		case data := <-b.queue:
			if _, err := b.conn.Write(data); err != nil {
				log.Debugw("branch write failed", "port", b.port, "error", err)
			}
		case <-b.done:
			// Flush what is already queued before closing.
			for {
				select {
				case data := <-b.queue:
					b.conn.Write(data)
				default:
					b.conn.Close()
					return
				}
			}
		}
	}
}

func (b *branchOut) shutdown() {
	b.closeOnce.Do(func() { close(b.done) })
}

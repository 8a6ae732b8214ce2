package services

import (
	"sync"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	apperrors "camgate/pkg/errors"
	"camgate/pkg/portpool"

	"go.uber.org/zap"
)

type branch struct {
	handle ports.BranchHandle
	info   domain.BranchInfo
}

// BranchController manages the dynamic per-viewer branches of the shared
// media graph. It is the only component that mutates the graph for dynamic
// branches and the sole owner of every handle it creates.
type branchController struct {
	graph ports.MediaGraph
	pool  *portpool.Pool
	log   *zap.SugaredLogger

	mu       sync.Mutex
	branches map[domain.PeerID]*branch
}

func NewBranchController(graph ports.MediaGraph, pool *portpool.Pool, log *zap.SugaredLogger) ports.BranchController {
	return &branchController{
		graph:    graph,
		pool:     pool,
		log:      log,
		branches: make(map[domain.PeerID]*branch),
	}
}

// Attach allocates a port and links a new branch for the viewer to the
// distribution point matching its source. All-or-nothing: any failure
// releases the port and leaves no partial branch in the graph.
func (c *branchController) Attach(peerID domain.PeerID, source domain.Source) (int, error) {
	c.mu.Lock()
	if _, exists := c.branches[peerID]; exists {
		c.mu.Unlock()
		return 0, apperrors.NewDuplicateError("branch already attached").WithContext("peer_id", string(peerID))
	}
	c.mu.Unlock()

	if !c.graph.Ready() {
		return 0, apperrors.Wrap(domain.ErrGraphNotReady, apperrors.ErrCodeServiceUnavailable, "media graph not running")
	}

	point := source.DistributionPoint()
	if _, ok := c.graph.QueryElement(point); !ok {
		return 0, apperrors.Wrap(domain.ErrNoDistribution, apperrors.ErrCodeLinkFailure, "distribution point missing").
			WithContext("distribution_point", point)
	}

	port, err := c.pool.Allocate()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeResourceExhausted, "port allocation failed")
	}

	handle, err := c.graph.AttachBranch(point, port)
	if err != nil {
		c.pool.Release(port)
		return 0, apperrors.Wrap(err, apperrors.ErrCodeLinkFailure, "branch attach failed").
			WithContext("peer_id", string(peerID)).
			WithContext("port", port)
	}

	b := &branch{
		handle: handle,
		info: domain.BranchInfo{
			PeerID: peerID,
			Source: source,
			Port:   port,
			Active: true,
		},
	}

	c.mu.Lock()
	if _, exists := c.branches[peerID]; exists {
		// Lost a race with a concurrent attach for the same viewer; the
		// graph work happened outside the lock, so undo it here.
		c.mu.Unlock()
		if derr := c.graph.DetachBranch(handle); derr != nil {
			c.log.Warnw("rollback detach failed", "peer_id", peerID, "error", derr)
		}
		c.pool.Release(port)
		return 0, apperrors.NewDuplicateError("branch already attached").WithContext("peer_id", string(peerID))
	}
	c.branches[peerID] = b
	c.mu.Unlock()

	c.log.Infow("branch attached",
		"peer_id", peerID,
		"distribution_point", point,
		"port", port,
	)
	return port, nil
}

// Detach tears the viewer's branch down and releases its port. Idempotent:
// detaching an unknown viewer reports false without side effects.
func (c *branchController) Detach(peerID domain.PeerID) bool {
	c.mu.Lock()
	b, ok := c.branches[peerID]
	if ok {
		delete(c.branches, peerID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	if err := c.graph.DetachBranch(b.handle); err != nil {
		// The port is still released: the graph side may leak an element on
		// an engine fault, but the pool must stay accurate.
		c.log.Errorw("branch detach failed", "peer_id", peerID, "error", err)
	}
	c.pool.Release(b.info.Port)

	c.log.Infow("branch detached", "peer_id", peerID, "port", b.info.Port)
	return true
}

// Query returns the branch bound to the viewer, if any.
func (c *branchController) Query(peerID domain.PeerID) (domain.BranchInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.branches[peerID]; ok {
		return b.info, true
	}
	return domain.BranchInfo{}, false
}

// DetachAll removes every branch, returning how many were detached. The
// graph must not shut down before this completes.
func (c *branchController) DetachAll() int {
	c.mu.Lock()
	ids := make([]domain.PeerID, 0, len(c.branches))
	for id := range c.branches {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	n := 0
	for _, id := range ids {
		if c.Detach(id) {
			n++
		}
	}
	return n
}

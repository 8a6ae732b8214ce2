package http

import (
	"net/http"
	"time"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	"camgate/pkg/portpool"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Readiness reports whether the media pipeline is up. The handler exposes it
// on /healthz so an orchestrator can restart the gateway when the pipeline
// never comes up.
type Readiness interface {
	Ready() bool
}

type StatusHandler struct {
	sessions ports.SessionManager
	graph    Readiness
	pool     *portpool.Pool
	started  time.Time
}

func NewStatusHandler(sessions ports.SessionManager, graph Readiness, pool *portpool.Pool) *StatusHandler {
	return &StatusHandler{
		sessions: sessions,
		graph:    graph,
		pool:     pool,
		started:  time.Now(),
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/peers", h.ListPeers)
		api.GET("/peers/:id", h.GetPeer)
		api.GET("/stats", h.GetStats)
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	if h.graph != nil && !h.graph.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "pipeline_down",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *StatusHandler) ListPeers(c *gin.Context) {
	infos := h.sessions.Peers()

	peers := make([]gin.H, 0, len(infos))
	for _, info := range infos {
		peers = append(peers, peerResponse(info))
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(peers),
		"peers": peers,
	})
}

func (h *StatusHandler) GetPeer(c *gin.Context) {
	peerID := domain.PeerID(c.Param("id"))

	info, ok := h.sessions.PeerInfo(peerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
		return
	}
	c.JSON(http.StatusOK, peerResponse(info))
}

func (h *StatusHandler) GetStats(c *gin.Context) {
	stats := h.sessions.Stats()

	resp := gin.H{
		"total_peers":      stats.TotalPeers,
		"connected_peers":  stats.ConnectedPeers,
		"total_bytes_sent": stats.TotalBytesSent,
		"average_bitrate":  stats.AverageBitrate,
	}
	if h.pool != nil {
		resp["ports_in_use"] = h.pool.InUse()
		resp["ports_free"] = h.pool.Free()
	}
	c.JSON(http.StatusOK, resp)
}

func peerResponse(info domain.SessionInfo) gin.H {
	return gin.H{
		"peer_id":       info.PeerID,
		"source":        info.Source.Device.String() + "/" + info.Source.Quality.String(),
		"state":         info.State,
		"port":          info.Port,
		"created_at":    info.CreatedAt,
		"last_activity": info.LastActivity,
		"bytes_sent":    info.Stats.BytesSent,
		"packets_sent":  info.Stats.PacketsSent,
		"bitrate":       info.Stats.Bitrate,
	}
}

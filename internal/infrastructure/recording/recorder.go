package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"camgate/internal/core/domain"
	"camgate/internal/infrastructure/monitoring"
	apperrors "camgate/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config sets the clip store location and the capture window padding.
type Config struct {
	Directory string
	PreRoll   time.Duration
	PostRoll  time.Duration
}

// EventRecorder manages event-triggered recording clips. The camera process
// captures continuously into a ring buffer on the reserved recording ports;
// this recorder marks windows in that buffer by writing clip manifests that
// the capture side finalizes. One clip is active at a time; a trigger during
// an active clip extends it.
type EventRecorder struct {
	cfg Config
	log *zap.SugaredLogger

	mu        sync.Mutex
	active    *domain.Clip
	postTimer *time.Timer
	stored    int
}

func New(cfg Config, log *zap.SugaredLogger) (*EventRecorder, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "recording directory unavailable")
	}

	r := &EventRecorder{cfg: cfg, log: log}
	r.stored = r.countManifests()
	return r, nil
}

// StartClip opens a clip window reaching preRoll into the past. Returns the
// clip id; triggering while a clip is active extends the active clip and
// returns its id.
func (r *EventRecorder) StartClip(reason string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		if r.postTimer != nil {
			r.postTimer.Stop()
			r.postTimer = nil
		}
		r.log.Debugw("extending active clip", "clip_id", r.active.ID, "reason", reason)
		return r.active.ID, nil
	}

	clip := &domain.Clip{
		ID:        uuid.NewString(),
		Reason:    reason,
		StartedAt: time.Now().Add(-r.cfg.PreRoll),
	}
	clip.Path = filepath.Join(r.cfg.Directory, fmt.Sprintf("%s_%s.json", clip.StartedAt.Format("20060102T150405"), clip.ID))
	r.active = clip

	r.log.Infow("clip started", "clip_id", clip.ID, "reason", reason)
	return clip.ID, nil
}

// StopClip schedules finalization postRoll from now. Stopping with no active
// clip is a no-op.
func (r *EventRecorder) StopClip() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil || r.postTimer != nil {
		return nil
	}

	if r.cfg.PostRoll <= 0 {
		return r.finalizeLocked()
	}
	r.postTimer = time.AfterFunc(r.cfg.PostRoll, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.postTimer = nil
		if err := r.finalizeLocked(); err != nil {
			r.log.Errorw("clip finalize failed", "error", err)
		}
	})
	return nil
}

// Flush finalizes any active clip immediately. Called on shutdown.
func (r *EventRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.postTimer != nil {
		r.postTimer.Stop()
		r.postTimer = nil
	}
	if r.active != nil {
		if err := r.finalizeLocked(); err != nil {
			r.log.Errorw("clip finalize failed", "error", err)
		}
	}
}

func (r *EventRecorder) finalizeLocked() error {
	clip := r.active
	r.active = nil
	clip.StoppedAt = time.Now()

	data, err := json.MarshalIndent(clip, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(clip.Path, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "clip manifest write failed")
	}
	r.stored++
	r.log.Infow("clip finalized", "clip_id", clip.ID, "duration", clip.StoppedAt.Sub(clip.StartedAt))
	return nil
}

func (r *EventRecorder) Status() domain.RecorderStatus {
	r.mu.Lock()
	status := domain.RecorderStatus{
		Recording:   r.active != nil,
		ClipsStored: r.stored,
	}
	if r.active != nil {
		status.ActiveClip = r.active.ID
	}
	r.mu.Unlock()

	if usage, err := monitoring.DiskUsagePercent(r.cfg.Directory); err == nil {
		status.DiskUsagePercent = usage
	}
	return status
}

func (r *EventRecorder) countManifests() int {
	entries, err := os.ReadDir(r.cfg.Directory)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n
}

// OnOverheat lets the thermal monitor trigger evidence clips.
func (r *EventRecorder) OnOverheat(zone string, temp int) {
	if _, err := r.StartClip(fmt.Sprintf("overheat_%s_%dc", zone, temp)); err != nil {
		r.log.Errorw("overheat clip failed", "error", err)
	}
}

// EventSink implementation: failed sessions leave evidence, normal lifecycle
// is log-only.

func (r *EventRecorder) PeerConnected(peerID domain.PeerID, source domain.Source) {
	r.log.Debugw("viewer connected", "peer_id", peerID, "device", source.Device.String())
}

func (r *EventRecorder) PeerDisconnected(peerID domain.PeerID) {
	r.log.Debugw("viewer disconnected", "peer_id", peerID)
}

func (r *EventRecorder) PeerFailed(peerID domain.PeerID, reason string) {
	if _, err := r.StartClip("peer_failure"); err != nil {
		r.log.Errorw("failure clip failed", "peer_id", peerID, "error", err)
		return
	}
	_ = r.StopClip()
}

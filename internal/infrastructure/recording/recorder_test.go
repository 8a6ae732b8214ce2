package recording

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camgate/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRecorder(t *testing.T, pre, post time.Duration) *EventRecorder {
	t.Helper()
	r, err := New(Config{Directory: t.TempDir(), PreRoll: pre, PostRoll: post}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return r
}

func TestRecorderClipLifecycle(t *testing.T) {
	r := newTestRecorder(t, 2*time.Second, 0)

	id, err := r.StartClip("operator")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status := r.Status()
	assert.True(t, status.Recording)
	assert.Equal(t, id, status.ActiveClip)

	require.NoError(t, r.StopClip())

	status = r.Status()
	assert.False(t, status.Recording)
	assert.Equal(t, 1, status.ClipsStored)
}

func TestRecorderPreRollShiftsStart(t *testing.T) {
	r := newTestRecorder(t, 5*time.Second, 0)

	before := time.Now()
	_, err := r.StartClip("motion")
	require.NoError(t, err)
	require.NoError(t, r.StopClip())

	entries, err := os.ReadDir(r.cfg.Directory)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(r.cfg.Directory, entries[0].Name()))
	require.NoError(t, err)

	var clip domain.Clip
	require.NoError(t, json.Unmarshal(data, &clip))
	assert.Equal(t, "motion", clip.Reason)
	assert.True(t, clip.StartedAt.Before(before.Add(-4*time.Second)))
}

func TestRecorderTriggerDuringActiveClipExtends(t *testing.T) {
	r := newTestRecorder(t, 0, 0)

	first, err := r.StartClip("motion")
	require.NoError(t, err)
	second, err := r.StartClip("overheat_cpu_90c")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.NoError(t, r.StopClip())
	assert.Equal(t, 1, r.Status().ClipsStored)
}

func TestRecorderPostRollDelaysFinalize(t *testing.T) {
	r := newTestRecorder(t, 0, 50*time.Millisecond)

	_, err := r.StartClip("motion")
	require.NoError(t, err)
	require.NoError(t, r.StopClip())

	// Still recording through the post-roll window.
	assert.True(t, r.Status().Recording)

	require.Eventually(t, func() bool {
		return !r.Status().Recording && r.Status().ClipsStored == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorderFlushFinalizesImmediately(t *testing.T) {
	r := newTestRecorder(t, 0, time.Hour)

	_, err := r.StartClip("motion")
	require.NoError(t, err)
	require.NoError(t, r.StopClip())
	require.True(t, r.Status().Recording)

	r.Flush()
	assert.False(t, r.Status().Recording)
	assert.Equal(t, 1, r.Status().ClipsStored)
}

func TestRecorderPeerFailureLeavesClip(t *testing.T) {
	r := newTestRecorder(t, 0, 0)

	r.PeerFailed("viewer-1", "dtls failure")
	assert.Equal(t, 1, r.Status().ClipsStored)

	// Normal lifecycle leaves no clips.
	r.PeerConnected("viewer-2", domain.ParseSource("rgb/main"))
	r.PeerDisconnected("viewer-2")
	assert.Equal(t, 1, r.Status().ClipsStored)
}

func TestRecorderCountsExistingManifests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte("{}"), 0o644))

	r, err := New(Config{Directory: dir}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Status().ClipsStored)
}

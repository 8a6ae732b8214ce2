package services

import (
	"context"
	"time"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"

	"go.uber.org/zap"
)

const commandTimeout = 10 * time.Second

// CommandDispatcher routes control commands relayed through signaling to the
// device subsystems. Unknown commands are logged and dropped; a command for a
// subsystem that is not fitted on this unit is rejected the same way.
type CommandDispatcher struct {
	ptz      ports.PTZController // nil when no PTZ head is fitted
	recorder ports.Recorder      // nil when recording is disabled
	runner   ports.CommandRunner // nil when ad-hoc commands are disabled
	log      *zap.SugaredLogger
}

func NewCommandDispatcher(ptz ports.PTZController, recorder ports.Recorder, runner ports.CommandRunner, log *zap.SugaredLogger) *CommandDispatcher {
	return &CommandDispatcher{ptz: ptz, recorder: recorder, runner: runner, log: log}
}

// Handle executes one command. Runs on the router's goroutine; anything slow
// must not block signaling, so ad-hoc commands get a bounded timeout.
func (d *CommandDispatcher) Handle(cmd domain.Command) {
	switch cmd.Name {
	case "ptz":
		d.handlePTZ(cmd)
	case "record":
		d.handleRecord(cmd)
	case "custom_command":
		d.handleCustom(cmd)
	default:
		d.log.Warnw("unknown command dropped", "command", cmd.Name, "peer_id", cmd.PeerID)
	}
}

func (d *CommandDispatcher) handlePTZ(cmd domain.Command) {
	if d.ptz == nil {
		d.log.Warnw("ptz command on unit without ptz head", "peer_id", cmd.PeerID)
		return
	}

	direction, _ := cmd.Parameters["direction"].(string)
	if direction == "" {
		d.log.Warnw("ptz command missing direction", "peer_id", cmd.PeerID)
		return
	}
	if direction == "stop" {
		if err := d.ptz.Stop(); err != nil {
			d.log.Errorw("ptz stop failed", "error", err)
		}
		return
	}

	speed := intParam(cmd.Parameters, "speed", 50)
	if err := d.ptz.Move(direction, speed); err != nil {
		d.log.Errorw("ptz move failed", "direction", direction, "error", err)
		return
	}
	d.log.Debugw("ptz command executed", "direction", direction, "speed", speed)
}

func (d *CommandDispatcher) handleRecord(cmd domain.Command) {
	if d.recorder == nil {
		d.log.Warnw("record command with recording disabled", "peer_id", cmd.PeerID)
		return
	}

	action, _ := cmd.Parameters["action"].(string)
	switch action {
	case "start":
		reason, _ := cmd.Parameters["reason"].(string)
		if reason == "" {
			reason = "manual"
		}
		clipID, err := d.recorder.StartClip(reason)
		if err != nil {
			d.log.Errorw("clip start failed", "error", err)
			return
		}
		d.log.Infow("clip started", "clip_id", clipID, "reason", reason)
	case "stop":
		if err := d.recorder.StopClip(); err != nil {
			d.log.Errorw("clip stop failed", "error", err)
		}
	default:
		d.log.Warnw("record command with unknown action", "action", action)
	}
}

func (d *CommandDispatcher) handleCustom(cmd domain.Command) {
	if d.runner == nil {
		d.log.Warnw("custom command with runner disabled", "peer_id", cmd.PeerID)
		return
	}

	name, _ := cmd.Parameters["command"].(string)
	if name == "" {
		d.log.Warnw("custom command missing name", "peer_id", cmd.PeerID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := d.runner.Run(ctx, name, cmd.Parameters)
	if err != nil {
		d.log.Errorw("custom command failed", "command", name, "error", err)
		return
	}
	d.log.Infow("custom command executed", "command", name, "output", out)
}

// intParam reads a numeric parameter that JSON decoding may have produced as
// float64, int or a quoted number.
func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

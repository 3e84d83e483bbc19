// Package app assembles the daemon: audio drivers, pipelines, event bus,
// control loop, session controller, local control socket, and the remote
// button feed.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/korvolabs/korvod/internal/audio"
	"github.com/korvolabs/korvod/internal/bus"
	"github.com/korvolabs/korvod/internal/config"
	"github.com/korvolabs/korvod/internal/control"
	"github.com/korvolabs/korvod/internal/device"
	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/ipc"
	"github.com/korvolabs/korvod/internal/periph"
	"github.com/korvolabs/korvod/internal/pipeline"
	"github.com/korvolabs/korvod/internal/session"
	"github.com/korvolabs/korvod/internal/stream"
	"github.com/korvolabs/korvod/internal/upload"
)

// Element tags referenced by control loop routing.
const (
	tagMic    = "mic"
	tagUpload = "upload"
	tagHTTP   = "http"
	tagMP3    = "mp3"
	tagPCM    = "pcm"
)

// Daemon is the assembled process. Build it with New, drive it with Run.
type Daemon struct {
	cfg    config.Config
	logger *slog.Logger

	bus      *bus.Bus
	loop     *control.Loop
	volume   *device.Volume
	recorder *session.Recorder
	capture  *pipeline.Pipeline
	playback *pipeline.Pipeline
	sink     *element.Element
	feed     *periph.RemoteFeed
}

// New wires every component from the validated configuration.
func New(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger,
		bus:    bus.New(64),
	}

	volume, err := device.NewVolume(logger, device.NewLogHAL(logger), cfg.Playback.Volume)
	if err != nil {
		return nil, fmt.Errorf("init volume control: %w", err)
	}
	d.volume = volume

	capDriver, outDriver := buildDrivers(cfg.Audio)

	if err := d.buildCapture(capDriver); err != nil {
		return nil, err
	}
	if cfg.Playback.URL != "" {
		if err := d.buildPlayback(outDriver); err != nil {
			return nil, err
		}
	}

	d.loop = control.New(d.bus, logger)
	d.loop.OnButton(d.handleButton)
	d.loop.OnFault(tagMic, d.recorder.HandleFault)
	d.loop.OnFault(tagUpload, d.recorder.HandleFault)
	if d.playback != nil {
		d.loop.OnStreamInfo(tagMP3, d.reclockSink)
		for _, tag := range []string{tagHTTP, tagMP3, tagPCM} {
			d.loop.OnFault(tag, d.handlePlaybackFault)
		}
	}

	d.feed = periph.NewRemoteFeed(cfg.Control.ListenAddr, d.bus, logger)
	return d, nil
}

// buildDrivers picks the audio backend from configuration.
func buildDrivers(cfg config.AudioConfig) (stream.CaptureDriver, stream.OutputDriver) {
	if cfg.Driver == "null" {
		return audio.NewSilenceSource(), audio.NewDiscardSink()
	}
	return audio.NewPulseSource(cfg.Input, cfg.Fallback), audio.NewPulseSink()
}

func (d *Daemon) buildCapture(driver stream.CaptureDriver) error {
	clock := element.StreamInfo{
		SampleRate: d.cfg.Record.SampleRate,
		Bits:       d.cfg.Record.Bits,
		Channels:   d.cfg.Record.Channels,
	}
	mic := element.New(element.Config{Tag: tagMic, Role: element.RoleReader, Clock: clock},
		stream.NewMicSource(driver))
	up := element.New(element.Config{Tag: tagUpload, Role: element.RoleWriter, URI: d.cfg.Record.ServerURI, Clock: clock},
		stream.NewUploadWriter(upload.New(), d.logger))
	mic.SetListener(d.bus)
	up.SetListener(d.bus)

	capture, err := pipeline.Compose("capture", []*element.Element{mic, up},
		pipeline.WithBufferSize(d.cfg.Record.BufferSize),
		pipeline.WithStopTimeout(d.cfg.Record.StopTimeout))
	if err != nil {
		return fmt.Errorf("compose capture pipeline: %w", err)
	}
	d.capture = capture
	d.recorder = session.NewRecorder(d.logger, capture, d.cfg.Record.ServerURI)
	return nil
}

func (d *Daemon) buildPlayback(driver stream.OutputDriver) error {
	// The MP3 decoder reports the real clock once the header is parsed; the
	// sink opens with a placeholder and reclocks on that event.
	sinkClock := element.StreamInfo{SampleRate: 44100, Bits: 16, Channels: 2}

	src := element.New(element.Config{Tag: tagHTTP, Role: element.RoleReader, URI: d.cfg.Playback.URL},
		stream.NewHTTPReader())
	dec := element.New(element.Config{Tag: tagMP3, Role: element.RoleFilter},
		stream.NewMP3Decoder())
	sink := element.New(element.Config{Tag: tagPCM, Role: element.RoleWriter, Clock: sinkClock},
		stream.NewPCMSink(driver))
	for _, el := range []*element.Element{src, dec, sink} {
		el.SetListener(d.bus)
	}

	playback, err := pipeline.Compose("playback", []*element.Element{src, dec, sink},
		pipeline.WithBufferSize(d.cfg.Record.BufferSize))
	if err != nil {
		return fmt.Errorf("compose playback pipeline: %w", err)
	}
	d.playback = playback
	d.sink = sink
	return nil
}

// Run serves the daemon until ctx is cancelled. Shutdown stops the remote
// feed and the control socket, drains the control loop, and settles both
// pipelines.
func (d *Daemon) Run(ctx context.Context) error {
	socketPath, listener, err := d.acquireSocket(ctx)
	if err != nil {
		return err
	}

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- d.feed.Serve(feedCtx)
	}()

	var sockErr chan error
	if listener != nil {
		sockErr = make(chan error, 1)
		go func() {
			sockErr <- ipc.Serve(feedCtx, listener, ipc.HandlerFunc(d.handleCommand))
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.loop.Run()
	}()

	if d.playback != nil && d.cfg.Playback.Autoplay {
		if err := d.playback.Run(); err != nil {
			d.logger.Error("autoplay start failed", "error", err.Error())
		} else {
			d.logger.Info("autoplay started", "url", d.cfg.Playback.URL)
		}
	}

	d.logger.Info("daemon ready",
		"control_addr", d.cfg.Control.ListenAddr,
		"record_target", d.cfg.Record.ServerURI,
		"audio_driver", d.cfg.Audio.Driver,
	)

	var runErr error
	sockDrained := false
	select {
	case <-ctx.Done():
	case err := <-feedErr:
		if err != nil {
			runErr = fmt.Errorf("remote feed: %w", err)
		}
	case err := <-sockErr:
		sockDrained = true
		if err != nil {
			runErr = fmt.Errorf("control socket: %w", err)
		}
	}

	// Stop producers first so no event is lost mid-dispatch, then drain the
	// loop before touching session state from this goroutine.
	cancelFeed()
	if listener != nil {
		if !sockDrained {
			if err := <-sockErr; err != nil {
				d.logger.Warn("control socket", "error", err.Error())
			}
		}
		_ = os.Remove(socketPath)
	}
	d.bus.Close()
	wg.Wait()

	d.recorder.HandleStopRequest()
	d.settlePlayback()
	if err := d.capture.Terminate(); err != nil {
		d.logger.Warn("terminate capture pipeline", "error", err.Error())
	}
	if d.playback != nil {
		if err := d.playback.Terminate(); err != nil {
			d.logger.Warn("terminate playback pipeline", "error", err.Error())
		}
	}

	d.logger.Info("daemon stopped")
	return runErr
}

// acquireSocket binds the local control socket. A missing runtime directory
// disables the socket; a responsive owner on the path is a second daemon
// instance and aborts startup.
func (d *Daemon) acquireSocket(ctx context.Context) (string, net.Listener, error) {
	path := d.cfg.Control.Socket
	if path == "" {
		resolved, err := ipc.RuntimeSocketPath()
		if err != nil {
			d.logger.Warn("control socket disabled", "error", err.Error())
			return "", nil, nil
		}
		path = resolved
	}

	listener, err := ipc.Acquire(ctx, path, time.Second, 2)
	if err != nil {
		return "", nil, fmt.Errorf("acquire control socket: %w", err)
	}
	d.logger.Info("control socket ready", "path", path)
	return path, listener, nil
}

// handleCommand serves one control socket request. Start and stop are fed
// through the bus as record button edges so the control loop stays the only
// goroutine driving the session.
func (d *Daemon) handleCommand(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
	case ipc.CommandStart:
		periph.Publish(d.bus, periph.ButtonRecord, true)
	case ipc.CommandStop:
		periph.Publish(d.bus, periph.ButtonRecord, false)
	default:
		resp := d.statusResponse()
		resp.OK = false
		resp.Error = fmt.Sprintf("unknown command %q", req.Command)
		return resp
	}
	return d.statusResponse()
}

func (d *Daemon) statusResponse() ipc.Response {
	resp := ipc.Response{
		OK:     true,
		State:  string(d.recorder.State()),
		Volume: d.volume.Level(),
	}
	if id := d.recorder.ID(); id != uuid.Nil && d.recorder.State() == session.StateActive {
		resp.Session = id.String()
	}
	return resp
}

// handleButton maps button edges to device and session operations. Runs on
// the control loop goroutine.
func (d *Daemon) handleButton(button periph.Button, pressed bool) {
	switch button {
	case periph.ButtonVolumeUp:
		if pressed {
			d.volume.Up()
		}
	case periph.ButtonVolumeDown:
		if pressed {
			d.volume.Down()
		}
	case periph.ButtonRecord:
		if pressed {
			if err := d.recorder.HandleStartRequest(); err != nil {
				d.logger.Error("start recording", "error", err.Error())
			}
			return
		}
		d.recorder.HandleStopRequest()
	}
}

// reclockSink pushes decoder-reported parameters into the playback sink.
func (d *Daemon) reclockSink(info element.StreamInfo) {
	if err := d.sink.SetClock(info); err != nil {
		d.logger.Error("reclock playback sink", "error", err.Error())
	}
}

// handlePlaybackFault settles the playback chain so it can be restarted.
func (d *Daemon) handlePlaybackFault(status element.Status) {
	d.logger.Error("playback fault", "status", status.String())
	d.settlePlayback()
}

func (d *Daemon) settlePlayback() {
	if d.playback == nil {
		return
	}
	d.playback.SignalEOS()
	if err := d.playback.Stop(); err != nil {
		d.logger.Warn("stop playback pipeline", "error", err.Error())
	}
	if err := d.playback.Reset(); err != nil {
		d.logger.Warn("reset playback pipeline", "error", err.Error())
	}
}

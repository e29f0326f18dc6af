package upnp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"torrentcast/internal/media"
	"torrentcast/internal/metrics"
)

// State names one phase of a casting session.
type State string

const (
	StateIdle       State = "idle"
	StateRegistered State = "registered"
	StateSentURI    State = "sent_uri"
	StateSentPlay   State = "sent_play"
)

// MediaServer is the slice of the media server a controller needs: it starts
// the server lazily on first subscription and builds callback URLs from its
// port.
type MediaServer interface {
	Start() error
	Port() int
}

// Controller drives playback of one file on one renderer. It maps the file
// into the media server, subscribes to the device's AVTransport events and
// walks the session through registered, sent_uri and sent_play as events
// arrive. References to the server and registries are non-owning; teardown is
// an explicit Close.
type Controller struct {
	device *Device
	soap   *SOAPClient
	server MediaServer
	files  *media.FileRegistry
	notify *media.NotifyRegistry
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	videoPath    string
	eventPath    string
	sid          string
	subTimeout   time.Duration
	subscribedAt time.Time
}

func NewController(device *Device, soap *SOAPClient, server MediaServer, files *media.FileRegistry, notify *media.NotifyRegistry, logger *slog.Logger) *Controller {
	return &Controller{
		device: device,
		soap:   soap,
		server: server,
		files:  files,
		notify: notify,
		logger: logger,
		state:  StateIdle,
	}
}

func (c *Controller) Device() *Device { return c.device }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CastFile starts a casting session for the file at filePath. Any previous
// mapping is dropped and the device is stopped best-effort before the fresh
// URL is mapped and the event subscription renewed.
func (c *Controller) CastFile(ctx context.Context, filePath string) error {
	c.unmapVideo()

	if _, err := c.SendStop(ctx); err != nil {
		c.logger.Warn("pre-cast stop failed",
			slog.String("device", c.device.String()),
			slog.String("error", err.Error()))
	}

	urlPath := c.files.Map("video.mp4", filePath)
	c.mu.Lock()
	c.videoPath = urlPath
	c.mu.Unlock()
	c.setState(StateRegistered)

	return c.Resubscribe(ctx)
}

// Subscribe registers a fresh NOTIFY callback on the media server and opens
// an event subscription on the device. Already subscribed is a no-op.
func (c *Controller) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	subscribed := c.eventPath != ""
	c.mu.Unlock()
	if subscribed {
		return nil
	}

	if err := c.server.Start(); err != nil {
		return fmt.Errorf("upnp: start media server: %w", err)
	}

	urlPath := c.notify.Register(c.handleNotify)
	sid, timeout, err := subscribeEvents(ctx, c.soap.http, c.device.EventURL, c.makeURL(urlPath))
	if err != nil {
		c.notify.Unregister(urlPath)
		return err
	}

	c.mu.Lock()
	c.eventPath = urlPath
	c.sid = sid
	c.subTimeout = timeout
	c.subscribedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("subscribed to transport events",
		slog.String("device", c.device.String()),
		slog.String("sid", sid),
		slog.Duration("timeout", timeout))
	return nil
}

// Unsubscribe cancels the device-side subscription and removes the NOTIFY
// callback. Calling it with no active subscription is a no-op.
func (c *Controller) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	urlPath, sid := c.eventPath, c.sid
	c.eventPath, c.sid, c.subTimeout = "", "", 0
	c.mu.Unlock()
	if urlPath == "" {
		return nil
	}

	c.notify.Unregister(urlPath)
	return unsubscribeEvents(ctx, c.soap.http, c.device.EventURL, sid)
}

// Resubscribe always tears down the current subscription first so a
// controller never holds two.
func (c *Controller) Resubscribe(ctx context.Context) error {
	if err := c.Unsubscribe(ctx); err != nil {
		c.logger.Warn("unsubscribe failed",
			slog.String("device", c.device.String()),
			slog.String("error", err.Error()))
	}
	return c.Subscribe(ctx)
}

// Close ends the casting session: subscription cancelled, file unmapped.
func (c *Controller) Close(ctx context.Context) {
	if err := c.Unsubscribe(ctx); err != nil {
		c.logger.Warn("unsubscribe failed",
			slog.String("device", c.device.String()),
			slog.String("error", err.Error()))
	}
	c.unmapVideo()
	c.setState(StateIdle)
}

func (c *Controller) SendPlay(ctx context.Context) (map[string]string, error) {
	return c.invoke(ctx, "Play", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "Speed", Value: "1"},
	})
}

func (c *Controller) SendPause(ctx context.Context) (map[string]string, error) {
	return c.invoke(ctx, "Pause", []Arg{{Name: "InstanceID", Value: "0"}})
}

func (c *Controller) SendStop(ctx context.Context) (map[string]string, error) {
	return c.invoke(ctx, "Stop", []Arg{{Name: "InstanceID", Value: "0"}})
}

func (c *Controller) SetURI(ctx context.Context, uri string) (map[string]string, error) {
	return c.invoke(ctx, "SetAVTransportURI", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "CurrentURI", Value: uri},
		{Name: "CurrentURIMetaData", Value: ""},
	})
}

// Seek accepts an HH:MM:SS clock string or a bare number of seconds.
func (c *Controller) Seek(ctx context.Context, target string) (map[string]string, error) {
	clock, err := normalizeSeekTarget(target)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "Seek", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "Unit", Value: "REL_TIME"},
		{Name: "Target", Value: clock},
	})
}

func (c *Controller) PositionInfo(ctx context.Context) (map[string]string, error) {
	return c.invoke(ctx, "GetPositionInfo", []Arg{{Name: "InstanceID", Value: "0"}})
}

func (c *Controller) Volume(ctx context.Context) (int, error) {
	out, err := c.invoke(ctx, "GetVolume", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "Channel", Value: "Master"},
	})
	if err != nil {
		return 0, err
	}
	volume, err := strconv.Atoi(out["CurrentVolume"])
	if err != nil {
		return 0, fmt.Errorf("upnp: bad CurrentVolume %q", out["CurrentVolume"])
	}
	return volume, nil
}

func (c *Controller) SetVolume(ctx context.Context, volume int) (map[string]string, error) {
	if volume < 0 {
		volume = 0
	}
	return c.invoke(ctx, "SetVolume", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "Channel", Value: "Master"},
		{Name: "DesiredVolume", Value: strconv.Itoa(volume)},
	})
}

func (c *Controller) SetMute(ctx context.Context, muted bool) (map[string]string, error) {
	desired := "0"
	if muted {
		desired = "1"
	}
	return c.invoke(ctx, "Mute", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "Channel", Value: "Master"},
		{Name: "DesiredMute", Value: desired},
	})
}

// invoke ensures the event subscription exists, then issues the action. A
// device that does not advertise the action turns the call into a logged
// no-op.
func (c *Controller) invoke(ctx context.Context, action string, args []Arg) (map[string]string, error) {
	if err := c.Subscribe(ctx); err != nil {
		return nil, err
	}
	if !c.device.HasAction(action) {
		c.logger.Warn("device does not advertise action",
			slog.String("device", c.device.String()),
			slog.String("action", action))
		return nil, nil
	}
	return c.soap.Invoke(ctx, c.device.ControlURL, c.device.ServiceType, action, args)
}

// handleNotify consumes one AVTransport event from the media server's NOTIFY
// dispatch and advances the cast state machine.
func (c *Controller) handleNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	event, err := ParseTransportEvent(body)
	if err != nil {
		c.logger.Warn("ignoring malformed transport event",
			slog.String("device", c.device.String()),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)

	c.advance(r.Context(), event)
}

// advance checks and claims the next transition under the lock, so two
// concurrent events observing the same state cannot both fire its action.
func (c *Controller) advance(ctx context.Context, event TransportEvent) {
	c.mu.Lock()
	switch {
	case c.state == StateRegistered && c.videoPath != "":
		video := c.videoPath
		c.state = StateSentURI
		c.mu.Unlock()
		c.noteState(StateSentURI)
		if _, err := c.SetURI(ctx, c.makeURL(video)); err != nil {
			c.logger.Warn("set transport uri failed",
				slog.String("device", c.device.String()),
				slog.String("error", err.Error()))
		}
	case c.state == StateSentURI && event.TransportState == "STOPPED" && event.CanPlay():
		c.state = StateSentPlay
		c.mu.Unlock()
		c.noteState(StateSentPlay)
		if _, err := c.SendPlay(ctx); err != nil {
			c.logger.Warn("play failed",
				slog.String("device", c.device.String()),
				slog.String("error", err.Error()))
		}
	default:
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("transport event ignored",
			slog.String("device", c.device.String()),
			slog.String("state", string(state)),
			slog.String("transportState", event.TransportState),
			slog.String("actions", event.CurrentTransportActions))
	}
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.noteState(state)
}

func (c *Controller) noteState(state State) {
	metrics.CastTransitionsTotal.WithLabelValues(string(state)).Inc()
	c.logger.Info("cast state",
		slog.String("device", c.device.String()),
		slog.String("state", string(state)))
}

func (c *Controller) unmapVideo() {
	c.mu.Lock()
	urlPath := c.videoPath
	c.videoPath = ""
	c.mu.Unlock()
	if urlPath != "" {
		c.files.Unmap(urlPath)
	}
}

func (c *Controller) makeURL(urlPath string) string {
	return fmt.Sprintf("http://%s:%d%s", c.device.LocalIP, c.server.Port(), urlPath)
}

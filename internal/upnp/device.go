// Package upnp discovers AVTransport-capable renderers on the local network
// and drives playback on them over SOAP, reacting to the event NOTIFY
// callbacks the media server dispatches.
package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koron/go-ssdp"
)

// AVTransportService is the service type casting requires.
const AVTransportService = "urn:schemas-upnp-org:service:AVTransport:1"

// Device is one discovered renderer with its AVTransport endpoints resolved
// to absolute URLs.
type Device struct {
	FriendlyName string
	UDN          string
	Location     string
	ServiceType  string
	ControlURL   string
	EventURL     string
	// LocalIP is the address of the local interface that reaches the
	// device, used to build callback URLs the device can dial back.
	LocalIP string

	actions map[string]struct{}
}

func (d *Device) String() string {
	if d.FriendlyName != "" {
		return d.FriendlyName
	}
	return d.UDN
}

// HasAction reports whether the device's AVTransport service advertises the
// action in its SCPD.
func (d *Device) HasAction(action string) bool {
	_, ok := d.actions[action]
	return ok
}

// Discover searches the local network for renderers whose AVTransport service
// advertises SetAVTransportURI. Devices whose descriptions cannot be fetched
// or parsed are logged and skipped.
func Discover(ctx context.Context, wait time.Duration, logger *slog.Logger) ([]*Device, error) {
	waitSec := int(wait / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}
	services, err := ssdp.Search(AVTransportService, waitSec, "")
	if err != nil {
		return nil, fmt.Errorf("upnp: ssdp search: %w", err)
	}

	hc := &http.Client{Timeout: 10 * time.Second}
	seen := make(map[string]struct{})
	var devices []*Device
	for _, svc := range services {
		if _, ok := seen[svc.Location]; ok {
			continue
		}
		seen[svc.Location] = struct{}{}

		dev, err := Describe(ctx, hc, svc.Location)
		if err != nil {
			logger.Warn("device description failed",
				slog.String("location", svc.Location),
				slog.String("error", err.Error()))
			continue
		}
		if !dev.HasAction("SetAVTransportURI") {
			logger.Debug("device cannot cast", slog.String("device", dev.String()))
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Describe fetches and parses the device description at location, then the
// AVTransport SCPD for the advertised action list.
func Describe(ctx context.Context, hc *http.Client, location string) (*Device, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("upnp: parse location: %w", err)
	}

	var desc deviceDescription
	if err := fetchXML(ctx, hc, location, &desc); err != nil {
		return nil, err
	}

	svc, ok := desc.findService(AVTransportService)
	if !ok {
		return nil, fmt.Errorf("upnp: %s has no AVTransport service", location)
	}

	base := desc.baseURL(loc)
	dev := &Device{
		FriendlyName: desc.Device.FriendlyName,
		UDN:          desc.Device.UDN,
		Location:     location,
		ServiceType:  svc.ServiceType,
		ControlURL:   resolveURL(base, svc.ControlURL),
		EventURL:     resolveURL(base, svc.EventSubURL),
		LocalIP:      localIPToward(loc.Host),
		actions:      make(map[string]struct{}),
	}

	var scpd scpdDescription
	if err := fetchXML(ctx, hc, resolveURL(base, svc.SCPDURL), &scpd); err != nil {
		return nil, err
	}
	for _, action := range scpd.Actions {
		dev.actions[action.Name] = struct{}{}
	}
	return dev, nil
}

func fetchXML(ctx context.Context, hc *http.Client, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("upnp: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upnp: fetch %s: %s", rawURL, resp.Status)
	}
	if err := xml.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("upnp: decode %s: %w", rawURL, err)
	}
	return nil
}

// localIPToward returns the address of the local interface a UDP socket would
// use to reach host, so callback URLs are reachable from the device's side.
func localIPToward(host string) string {
	conn, err := net.Dial("udp", host)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

type deviceDescription struct {
	XMLName xml.Name `xml:"root"`
	URLBase string   `xml:"URLBase"`
	Device  struct {
		FriendlyName string          `xml:"friendlyName"`
		UDN          string          `xml:"UDN"`
		Services     []deviceService `xml:"serviceList>service"`
		Embedded     []struct {
			Services []deviceService `xml:"serviceList>service"`
		} `xml:"deviceList>device"`
	} `xml:"device"`
}

type deviceService struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

func (d *deviceDescription) findService(serviceType string) (deviceService, bool) {
	want := serviceTypePrefix(serviceType)
	for _, svc := range d.Device.Services {
		if strings.HasPrefix(svc.ServiceType, want) {
			return svc, true
		}
	}
	for _, sub := range d.Device.Embedded {
		for _, svc := range sub.Services {
			if strings.HasPrefix(svc.ServiceType, want) {
				return svc, true
			}
		}
	}
	return deviceService{}, false
}

// serviceTypePrefix strips the trailing version so AVTransport:2 devices
// still match.
func serviceTypePrefix(serviceType string) string {
	i := strings.LastIndex(serviceType, ":")
	if i < 0 {
		return serviceType
	}
	return serviceType[:i+1]
}

func (d *deviceDescription) baseURL(loc *url.URL) *url.URL {
	if d.URLBase != "" {
		if base, err := url.Parse(d.URLBase); err == nil {
			return base
		}
	}
	return &url.URL{Scheme: loc.Scheme, Host: loc.Host}
}

func resolveURL(base *url.URL, ref string) string {
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

type scpdDescription struct {
	XMLName xml.Name `xml:"scpd"`
	Actions []struct {
		Name string `xml:"name"`
	} `xml:"actionList>action"`
}

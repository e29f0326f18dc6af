package upnp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testDescriptionXML = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>Living Room TV</friendlyName>
    <UDN>uuid:12345678-aaaa-bbbb-cccc-1234567890ab</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:RenderingControl</serviceId>
        <controlURL>/RenderingControl/control</controlURL>
        <eventSubURL>/RenderingControl/event</eventSubURL>
        <SCPDURL>/RenderingControl/scpd.xml</SCPDURL>
      </service>
      <service>
        <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:AVTransport</serviceId>
        <controlURL>/AVTransport/control</controlURL>
        <eventSubURL>/AVTransport/event</eventSubURL>
        <SCPDURL>/AVTransport/scpd.xml</SCPDURL>
      </service>
    </serviceList>
  </device>
</root>`

const testSCPDXML = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action><name>SetAVTransportURI</name></action>
    <action><name>Play</name></action>
    <action><name>Stop</name></action>
    <action><name>Seek</name></action>
  </actionList>
</scpd>`

func TestDescribe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/description.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDescriptionXML))
	})
	mux.HandleFunc("/AVTransport/scpd.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testSCPDXML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dev, err := Describe(context.Background(), srv.Client(), srv.URL+"/description.xml")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if dev.FriendlyName != "Living Room TV" {
		t.Errorf("FriendlyName = %q", dev.FriendlyName)
	}
	if dev.ControlURL != srv.URL+"/AVTransport/control" {
		t.Errorf("ControlURL = %q", dev.ControlURL)
	}
	if dev.EventURL != srv.URL+"/AVTransport/event" {
		t.Errorf("EventURL = %q", dev.EventURL)
	}
	for _, action := range []string{"SetAVTransportURI", "Play", "Stop", "Seek"} {
		if !dev.HasAction(action) {
			t.Errorf("missing action %s", action)
		}
	}
	if dev.HasAction("Pause") {
		t.Error("unexpected action Pause")
	}
	if dev.LocalIP == "" {
		t.Error("LocalIP not resolved")
	}
}

func TestDescribeNoAVTransport(t *testing.T) {
	body := strings.ReplaceAll(testDescriptionXML, "AVTransport", "ConnectionManager")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	if _, err := Describe(context.Background(), srv.Client(), srv.URL+"/description.xml"); err == nil {
		t.Fatal("expected error for device without AVTransport")
	}
}

func TestFindServiceMatchesNewerVersion(t *testing.T) {
	body := strings.ReplaceAll(testDescriptionXML, "AVTransport:1", "AVTransport:2")
	mux := http.NewServeMux()
	mux.HandleFunc("/description.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	mux.HandleFunc("/AVTransport/scpd.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testSCPDXML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dev, err := Describe(context.Background(), srv.Client(), srv.URL+"/description.xml")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !strings.HasSuffix(dev.ServiceType, "AVTransport:2") {
		t.Errorf("ServiceType = %q", dev.ServiceType)
	}
}

func TestParseGENATimeout(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"Second-300", 300 * time.Second},
		{"Second-1800", 1800 * time.Second},
		{"infinite", defaultSubscribeTimeout},
		{"Second-abc", defaultSubscribeTimeout},
		{"", defaultSubscribeTimeout},
	}
	for _, tc := range cases {
		if got := parseGENATimeout(tc.in); got != tc.want {
			t.Errorf("parseGENATimeout(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

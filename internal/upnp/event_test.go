package upnp

import "testing"

const stoppedEventBody = `<?xml version="1.0"?>
<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
  <e:property>
    <LastChange>&lt;Event xmlns=&quot;urn:schemas-upnp-org:metadata-1-0/AVT/&quot;&gt;&lt;InstanceID val=&quot;0&quot;&gt;&lt;TransportState val=&quot;STOPPED&quot;/&gt;&lt;CurrentTransportActions val=&quot;Play,Seek,X_DLNA_SeekTime&quot;/&gt;&lt;/InstanceID&gt;&lt;/Event&gt;</LastChange>
  </e:property>
</e:propertyset>`

func TestParseTransportEvent(t *testing.T) {
	event, err := ParseTransportEvent([]byte(stoppedEventBody))
	if err != nil {
		t.Fatalf("ParseTransportEvent: %v", err)
	}
	if event.TransportState != "STOPPED" {
		t.Errorf("TransportState = %q, want STOPPED", event.TransportState)
	}
	if !event.CanPlay() {
		t.Errorf("CanPlay() = false for actions %q", event.CurrentTransportActions)
	}
}

func TestParseTransportEventMalformed(t *testing.T) {
	cases := map[string]string{
		"not xml":        "kaboom",
		"no LastChange":  `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><Other>x</Other></e:property></e:propertyset>`,
		"bad LastChange": `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><LastChange>&lt;Event&gt;</LastChange></e:property></e:propertyset>`,
		"no instance 0":  `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><LastChange>&lt;Event&gt;&lt;InstanceID val=&quot;1&quot;/&gt;&lt;/Event&gt;</LastChange></e:property></e:propertyset>`,
	}
	for name, body := range cases {
		if _, err := ParseTransportEvent([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCanPlay(t *testing.T) {
	cases := []struct {
		actions string
		want    bool
	}{
		{"Play,Stop,Pause", true},
		{"Play", true},
		{" Play , Stop ", true},
		{"Pause,Stop", false},
		{"Playlist", false},
		{"", false},
	}
	for _, tc := range cases {
		event := TransportEvent{CurrentTransportActions: tc.actions}
		if got := event.CanPlay(); got != tc.want {
			t.Errorf("CanPlay(%q) = %v, want %v", tc.actions, got, tc.want)
		}
	}
}

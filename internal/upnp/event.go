package upnp

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// TransportEvent is the subset of an AVTransport LastChange event the cast
// state machine reacts to.
type TransportEvent struct {
	TransportState          string
	CurrentTransportActions string
}

// CanPlay reports whether the device currently advertises the Play action.
func (e TransportEvent) CanPlay() bool {
	for _, action := range strings.Split(e.CurrentTransportActions, ",") {
		if strings.TrimSpace(action) == "Play" {
			return true
		}
	}
	return false
}

// propertySet is the outer GENA envelope. LastChange carries a second,
// escaped XML document inside its character data.
type propertySet struct {
	XMLName    xml.Name `xml:"propertyset"`
	LastChange string   `xml:"property>LastChange"`
}

type lastChangeEvent struct {
	XMLName   xml.Name `xml:"Event"`
	Instances []struct {
		Val                     string  `xml:"val,attr"`
		TransportState          attrVal `xml:"TransportState"`
		CurrentTransportActions attrVal `xml:"CurrentTransportActions"`
	} `xml:"InstanceID"`
}

type attrVal struct {
	Val string `xml:"val,attr"`
}

// ParseTransportEvent unwraps the NOTIFY body down to instance 0 of the inner
// LastChange document.
func ParseTransportEvent(body []byte) (TransportEvent, error) {
	var props propertySet
	if err := xml.Unmarshal(body, &props); err != nil {
		return TransportEvent{}, fmt.Errorf("upnp: malformed propertyset: %w", err)
	}
	if props.LastChange == "" {
		return TransportEvent{}, fmt.Errorf("upnp: propertyset has no LastChange")
	}

	var change lastChangeEvent
	if err := xml.Unmarshal([]byte(props.LastChange), &change); err != nil {
		return TransportEvent{}, fmt.Errorf("upnp: malformed LastChange: %w", err)
	}
	for _, instance := range change.Instances {
		if instance.Val == "0" {
			return TransportEvent{
				TransportState:          instance.TransportState.Val,
				CurrentTransportActions: instance.CurrentTransportActions.Val,
			}, nil
		}
	}
	return TransportEvent{}, fmt.Errorf("upnp: LastChange has no instance 0")
}

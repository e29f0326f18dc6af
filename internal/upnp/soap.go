package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"torrentcast/internal/metrics"
)

// Arg is one named input of a SOAP action. Argument order matters to some
// renderers, so callers pass a slice rather than a map.
type Arg struct {
	Name  string
	Value string
}

// SOAPClient invokes UPnP control actions over HTTP POST.
type SOAPClient struct {
	http   *http.Client
	logger *slog.Logger
}

func NewSOAPClient(logger *slog.Logger) *SOAPClient {
	return &SOAPClient{
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// NewSOAPClientWith uses the given HTTP client, which tests swap for a fake
// round tripper.
func NewSOAPClientWith(hc *http.Client, logger *slog.Logger) *SOAPClient {
	return &SOAPClient{http: hc, logger: logger}
}

// Invoke posts the action envelope to the control URL and returns the output
// arguments of the action response keyed by element name.
func (c *SOAPClient) Invoke(ctx context.Context, controlURL, serviceType, action string, args []Arg) (map[string]string, error) {
	envelope := buildActionEnvelope(serviceType, action, args)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, bytes.NewReader(envelope))
	if err != nil {
		metrics.SOAPCallsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, serviceType, action))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("soap action failed",
			slog.String("action", action),
			slog.String("controlURL", controlURL),
			slog.String("error", err.Error()))
		metrics.SOAPCallsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.SOAPCallsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}

	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		c.logger.Warn("soap response decode failed",
			slog.String("action", action),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()))
		metrics.SOAPCallsTotal.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("upnp: decode %s response: %w", action, err)
	}
	if env.Body.Fault != nil {
		c.logger.Warn("soap action fault",
			slog.String("action", action),
			slog.String("fault", env.Body.Fault.Error()))
		metrics.SOAPCallsTotal.WithLabelValues(action, "fault").Inc()
		return nil, fmt.Errorf("upnp: %s fault: %s", action, env.Body.Fault.Error())
	}
	if resp.StatusCode >= 400 {
		metrics.SOAPCallsTotal.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("upnp: %s error: %s", action, resp.Status)
	}

	out, err := parseActionResponse(env.Body.Inner)
	if err != nil {
		metrics.SOAPCallsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	metrics.SOAPCallsTotal.WithLabelValues(action, "ok").Inc()
	return out, nil
}

func buildActionEnvelope(serviceType, action string, args []Arg) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body><u:` + action + ` xmlns:u="` + serviceType + `">`)
	for _, arg := range args {
		buf.WriteString(`<` + arg.Name + `>`)
		buf.WriteString(xmlEscape(arg.Value))
		buf.WriteString(`</` + arg.Name + `>`)
	}
	buf.WriteString(`</u:` + action + `></s:Body></s:Envelope>`)
	return buf.Bytes()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *soapFault `xml:"Fault"`
		Inner []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail string `xml:"detail"`
}

func (f *soapFault) Error() string {
	if f == nil {
		return ""
	}
	if f.Detail != "" {
		return f.String + ": " + f.Detail
	}
	return f.String
}

// parseActionResponse walks the body's single response element and collects
// its child elements as name/text pairs.
func parseActionResponse(inner []byte) (map[string]string, error) {
	out := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(inner))

	depth := 0
	var name string
	var text bytes.Buffer
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("upnp: malformed action response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				name = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				out[name] = text.String()
			}
			depth--
		}
	}
}

package upnp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultSubscribeTimeout = 300 * time.Second

// subscribeEvents registers callbackURL for GENA event delivery on the
// service's event endpoint and returns the subscription id plus the timeout
// the device granted.
func subscribeEvents(ctx context.Context, hc *http.Client, eventURL, callbackURL string) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("CALLBACK", "<"+callbackURL+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", formatGENATimeout(defaultSubscribeTimeout))

	resp, err := hc.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("upnp: subscribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("upnp: subscribe: %s", resp.Status)
	}

	sid := resp.Header.Get("SID")
	if sid == "" {
		return "", 0, fmt.Errorf("upnp: subscribe: no SID in response")
	}
	return sid, parseGENATimeout(resp.Header.Get("TIMEOUT")), nil
}

// unsubscribeEvents cancels the subscription identified by sid.
func unsubscribeEvents(ctx context.Context, hc *http.Client, eventURL, sid string) error {
	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", eventURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("SID", sid)

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("upnp: unsubscribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upnp: unsubscribe: %s", resp.Status)
	}
	return nil
}

func formatGENATimeout(d time.Duration) string {
	return fmt.Sprintf("Second-%d", int(d/time.Second))
}

// parseGENATimeout reads a "Second-300" header value; "infinite" or garbage
// falls back to the requested default.
func parseGENATimeout(value string) time.Duration {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "Second-")
	if !ok {
		return defaultSubscribeTimeout
	}
	seconds, err := strconv.Atoi(rest)
	if err != nil || seconds <= 0 {
		return defaultSubscribeTimeout
	}
	return time.Duration(seconds) * time.Second
}

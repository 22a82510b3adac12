package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

// DeliverViaPrimary posts msg once to the relay server, outside the
// WebSocket. The relay forwards it to the other peer in the room. The result
// is logged; the delivery is never retried.
func (c *Channel) DeliverViaPrimary(msg protocol.Message) {
	c.deliver("WSS POST", msg, c.postPrimary)
}

// DeliverViaSecondary posts msg once to the room server, which keeps offers
// for the party that has not joined yet and clears the room on bye.
func (c *Channel) DeliverViaSecondary(msg protocol.Message) {
	c.deliver("room server POST", msg, c.postSecondary)
}

func (c *Channel) deliver(label string, msg protocol.Message, post func(context.Context, []byte) error) {
	data, err := protocol.Encode(msg)
	if err != nil {
		util.LogError("encode %s: %v", msg.Kind(), err)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		// Not bound to c.ctx: the final bye is posted during Shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		util.Stats.AddDelivery()
		util.LogDebug("%s C->S: %s", label, data)
		if err := post(ctx, data); err != nil {
			util.Stats.AddDeliveryFail()
			util.LogError("%s of %s failed: %v", label, msg.Kind(), err)
		}
	}()
}

// postPrimary sends the message form-encoded, as the relay reads it from the
// msg form field. SDP contains characters that must be escaped.
func (c *Channel) postPrimary(ctx context.Context, data []byte) error {
	target := c.postURL + url.PathEscape(c.session.RoomID) + "/" + url.PathEscape(c.session.ClientID)
	body := url.Values{"msg": {string(data)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// postSecondary sends the raw JSON body; the room server reads the body
// as-is and takes room and client from the query string.
func (c *Channel) postSecondary(ctx context.Context, data []byte) error {
	q := url.Values{"r": {c.session.RoomID}, "u": {c.session.ClientID}}
	target := strings.TrimSuffix(c.roomServerURL, "/") + "/wssmessage?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Channel) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: %s", ErrPeerUnreachable, req.Method, req.URL.Path, resp.Status)
	}
	return nil
}

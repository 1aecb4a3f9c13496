package devapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/device"
	"github.com/open-control-systems/device-poller/components/http/htclient"
	"github.com/open-control-systems/device-poller/components/poll"
)

// APIError is returned when the controller reports a non-zero error code.
type APIError struct {
	Code int64
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("controller error: code=%d msg=%s", e.Code, e.Msg)
}

// Client talks to the device-management controller.
//
// Remarks:
//   - Every error returned by the client is a *poll.ClientError.
type Client struct {
	baseURL string
	http    *htclient.HTTPClient
}

// NewClient is an initialization of Client.
//
// Parameters:
//   - client to perform HTTP requests.
//   - baseURL - controller API root, e.g. http://omada.local:8088/api/v2.
func NewClient(client *htclient.HTTPClient, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

// BaseURL returns the controller API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Devices returns adopted devices keyed by MAC address.
func (c *Client) Devices(ctx context.Context) (map[string]device.Device, error) {
	result, err := c.get(ctx, "/devices")
	if err != nil {
		return nil, err
	}

	return decodeList(result, func(d device.Device) string { return d.MAC })
}

// Clients returns connected clients keyed by MAC address.
func (c *Client) Clients(ctx context.Context) (map[string]device.ConnectedClient, error) {
	result, err := c.get(ctx, "/clients")
	if err != nil {
		return nil, err
	}

	return decodeList(result, func(cl device.ConnectedClient) string { return cl.MAC })
}

// FirmwareUpdate returns the firmware state of the device with the given MAC address.
func (c *Client) FirmwareUpdate(ctx context.Context, mac string) (device.FirmwareUpdate, error) {
	var update device.FirmwareUpdate

	result, err := c.get(ctx, "/devices/"+url.PathEscape(mac)+"/firmware")
	if err != nil {
		return update, err
	}

	if !result.IsObject() {
		return update, poll.NewClientError(
			fmt.Errorf("devapi: firmware result is not an object: mac=%s", mac))
	}

	if err := json.Unmarshal([]byte(result.Raw), &update); err != nil {
		return update, poll.NewClientError(
			fmt.Errorf("devapi: failed to decode firmware: mac=%s: %w", mac, err))
	}

	if update.MAC == "" {
		update.MAC = mac
	}

	return update, nil
}

func (c *Client) get(ctx context.Context, path string) (gjson.Result, error) {
	var fetcher device.Fetcher = htclient.NewURLFetcher(c.http, c.baseURL+path)

	body, err := fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, err
		}

		return gjson.Result{}, poll.NewClientError(
			fmt.Errorf("devapi: request failed: path=%s: %w", path, err))
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, poll.NewClientError(
			fmt.Errorf("devapi: malformed response: path=%s", path))
	}

	envelope := gjson.ParseBytes(body)

	code := envelope.Get("errorCode")
	if !code.Exists() {
		return gjson.Result{}, poll.NewClientError(
			fmt.Errorf("devapi: missing error code: path=%s", path))
	}

	if code.Int() != 0 {
		return gjson.Result{}, poll.NewClientError(&APIError{
			Code: code.Int(),
			Msg:  envelope.Get("msg").String(),
		})
	}

	return envelope.Get("result"), nil
}

func decodeList[T any](result gjson.Result, keyOf func(T) string) (map[string]T, error) {
	data := result.Get("data")
	if !data.IsArray() {
		return nil, poll.NewClientError(fmt.Errorf("devapi: result data is not a list"))
	}

	items := make(map[string]T)

	for _, raw := range data.Array() {
		var item T
		if err := json.Unmarshal([]byte(raw.Raw), &item); err != nil {
			return nil, poll.NewClientError(fmt.Errorf("devapi: failed to decode item: %w", err))
		}

		key := keyOf(item)
		if key == "" {
			core.LogWrn.Printf("devapi: skip item without MAC: item=%s\n", raw.Raw)
			continue
		}

		items[key] = item
	}

	return items, nil
}

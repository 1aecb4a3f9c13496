package devapi

import (
	"context"

	"github.com/open-control-systems/device-poller/components/device"
)

// FetchDevices is a poll.FetchFunc for the adopted devices.
func FetchDevices(ctx context.Context, client *Client) (map[string]device.Device, error) {
	return client.Devices(ctx)
}

// FetchClients is a poll.FetchFunc for the connected clients.
func FetchClients(ctx context.Context, client *Client) (map[string]device.ConnectedClient, error) {
	return client.Clients(ctx)
}

// FetchFirmwareUpdates is a poll.FetchFunc for the firmware state of every adopted device.
//
// Remarks:
//   - Devices are queried one by one, the whole fetch fails on the first error.
//   - Disconnected devices are skipped, the controller doesn't report firmware for them.
func FetchFirmwareUpdates(
	ctx context.Context,
	client *Client,
) (map[string]device.FirmwareUpdate, error) {
	devices, err := client.Devices(ctx)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]device.FirmwareUpdate, len(devices))

	for mac, dev := range devices {
		if !dev.Connected() {
			continue
		}

		update, err := client.FirmwareUpdate(ctx, mac)
		if err != nil {
			return nil, err
		}

		updates[mac] = update
	}

	return updates, nil
}

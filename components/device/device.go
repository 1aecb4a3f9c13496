package device

// JSON device data.
type JSON = map[string]any

// Type is a kind of the managed network device.
type Type string

const (
	// TypeAccessPoint is a wireless access point.
	TypeAccessPoint Type = "ap"

	// TypeSwitch is a managed switch.
	TypeSwitch Type = "switch"

	// TypeGateway is a router/gateway.
	TypeGateway Type = "gateway"
)

// Status codes reported by the controller for the adopted devices.
const (
	StatusDisconnected    = 0
	StatusConnected       = 1
	StatusPending         = 2
	StatusHeartbeatMissed = 3
	StatusIsolated        = 4
)

// Device is a network device managed by the controller.
type Device struct {
	MAC             string  `json:"mac"`
	Name            string  `json:"name"`
	Type            Type    `json:"type"`
	Model           string  `json:"model"`
	IP              string  `json:"ip"`
	Status          int     `json:"status"`
	FirmwareVersion string  `json:"firmwareVersion"`
	Uptime          int64   `json:"uptimeLong"`
	CPUUtil         float64 `json:"cpuUtil"`
	MemUtil         float64 `json:"memUtil"`
	ClientNum       int     `json:"clientNum"`
}

// Connected returns true if the controller can reach the device.
func (d Device) Connected() bool {
	return d.Status == StatusConnected
}

// Fields returns numeric device metrics.
func (d Device) Fields() JSON {
	return JSON{
		"status":     d.Status,
		"uptime":     d.Uptime,
		"cpu_util":   d.CPUUtil,
		"mem_util":   d.MemUtil,
		"client_num": d.ClientNum,
	}
}

// ConnectedClient is a host connected to the network.
type ConnectedClient struct {
	MAC         string `json:"mac"`
	Name        string `json:"name"`
	HostName    string `json:"hostName"`
	IP          string `json:"ip"`
	Wireless    bool   `json:"wireless"`
	SSID        string `json:"ssid"`
	APMAC       string `json:"apMac"`
	SignalLevel int    `json:"signalLevel"`
	Activity    int64  `json:"activity"`
	Uptime      int64  `json:"uptime"`
}

// Fields returns numeric client metrics.
func (c ConnectedClient) Fields() JSON {
	return JSON{
		"signal_level": c.SignalLevel,
		"activity":     c.Activity,
		"uptime":       c.Uptime,
	}
}

// FirmwareUpdate describes the firmware state of a device.
type FirmwareUpdate struct {
	MAC            string `json:"mac"`
	CurrentVersion string `json:"curFwVer"`
	LatestVersion  string `json:"lastFwVer"`
	ReleaseNotes   string `json:"fwReleaseLog"`
}

// Available returns true if a newer firmware can be installed.
func (u FirmwareUpdate) Available() bool {
	return u.LatestVersion != "" && u.LatestVersion != u.CurrentVersion
}

// Fields returns firmware state as metrics.
func (u FirmwareUpdate) Fields() JSON {
	return JSON{
		"update_available": u.Available(),
	}
}

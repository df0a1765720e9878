package client

import (
	"fmt"
	"net"
	"runtime"
	"strings"

	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/elastic/go-sysinfo"
)

// probeAddr is only used to pick the outbound interface; nothing is sent.
const probeAddr = "8.8.8.8:80"

// DiscoverDeviceID derives a device id from the local address used to reach
// the internet: the last octet of an IPv4 address or the last segment of an
// IPv6 address.
func DiscoverDeviceID() (usage.DeviceID, error) {
	conn, err := net.Dial("udp", probeAddr)
	if err != nil {
		return 0, fmt.Errorf("failed to determine local address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected local address %s", conn.LocalAddr())
	}
	return deviceIDFromIP(addr.IP)
}

func deviceIDFromIP(ip net.IP) (usage.DeviceID, error) {
	if v4 := ip.To4(); v4 != nil {
		return usage.DeviceID(v4[3]), nil
	}
	if v6 := ip.To16(); v6 != nil {
		return usage.DeviceID(uint16(v6[14])<<8 | uint16(v6[15])), nil
	}
	return 0, fmt.Errorf("invalid IP address %v", ip)
}

// DetectDeviceInfo describes this machine. The device type comes from
// configuration since it cannot be detected reliably.
func DetectDeviceInfo(deviceType usage.DeviceType) usage.DeviceInfo {
	info := usage.DeviceInfo{
		Type: deviceType,
		OS:   osName(runtime.GOOS),
	}

	host, err := sysinfo.Host()
	if err != nil {
		return info
	}
	if osInfo := host.Info().OS; osInfo != nil {
		if osInfo.Type != "" {
			info.OS = osName(osInfo.Type)
		}
		info.Distro = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
	}
	return info
}

func osName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin", "macos":
		return "macOS"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	default:
		return goos
	}
}

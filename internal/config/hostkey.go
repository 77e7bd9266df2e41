package config

import (
	"net"
	"slices"
	"strings"
)

// HostKey returns the hardware address used to select local settings.
// Among non-loopback interfaces it prefers one listed in known, otherwise
// the first one found. It returns DefaultHostKey when none exist.
func HostKey(known []string) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return DefaultHostKey
	}
	return pickHostKey(ifaces, known)
}

func pickHostKey(ifaces []net.Interface, known []string) string {
	var first string
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) == 0 {
			continue
		}
		mac := strings.ToLower(ifc.HardwareAddr.String())
		if slices.Contains(known, mac) {
			return mac
		}
		if first == "" {
			first = mac
		}
	}
	if first == "" {
		return DefaultHostKey
	}
	return first
}

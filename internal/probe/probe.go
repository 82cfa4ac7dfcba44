package probe

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"inkycal/internal/model"
)

// Default sysfs roots; tests substitute temp directories.
const (
	DefaultNetPath   = "/sys/class/net"
	DefaultPowerPath = "/sys/class/power_supply"
)

// readText reads a sysfs attribute, returning "" on any error. Probes are
// best effort and never fail the run.
func readText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WifiStatus inspects wireless interfaces under netPath and reports
// "connected", "disconnected", or "" when no wireless interface exists or
// sysfs is unavailable. The carrier attribute is authoritative; operstate
// is the fallback for drivers that do not expose carrier.
func WifiStatus(netPath string) string {
	entries, err := os.ReadDir(netPath)
	if err != nil {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		iface := filepath.Join(netPath, entry.Name())
		if info, err := os.Stat(filepath.Join(iface, "wireless")); err != nil || !info.IsDir() {
			continue
		}

		switch readText(filepath.Join(iface, "carrier")) {
		case "1":
			return "connected"
		case "0":
			return "disconnected"
		}

		operstate := strings.ToLower(readText(filepath.Join(iface, "operstate")))
		switch {
		case operstate == "up" || operstate == "unknown":
			return "connected"
		case operstate != "":
			return "disconnected"
		}
		return ""
	}
	return ""
}

// onlineFromStatus derives whether external power is applied from the sysfs
// status string. Unknown strings yield nil.
func onlineFromStatus(status string) *bool {
	online := new(bool)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "charging", "full", "not charging":
		*online = true
	case "discharging":
		*online = false
	default:
		return nil
	}
	return online
}

// UPS probes power_supply entries for UPS/battery information. Battery-type
// supplies are preferred; a supply counts only if it exposes a capacity or
// a recognizable status. Missing sysfs yields an absent UPS, never an
// error.
func UPS(powerPath string) model.UPSStatus {
	entries, err := os.ReadDir(powerPath)
	if err != nil {
		return model.UPSStatus{}
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	if len(dirs) == 0 {
		return model.UPSStatus{}
	}

	sort.Slice(dirs, func(i, j int) bool {
		ti := strings.ToLower(readText(filepath.Join(powerPath, dirs[i], "type")))
		tj := strings.ToLower(readText(filepath.Join(powerPath, dirs[j], "type")))
		bi, bj := 0, 0
		if ti != "battery" {
			bi = 1
		}
		if tj != "battery" {
			bj = 1
		}
		if bi != bj {
			return bi < bj
		}
		return dirs[i] < dirs[j]
	})

	for _, name := range dirs {
		supply := filepath.Join(powerPath, name)
		status := readText(filepath.Join(supply, "status"))
		online := onlineFromStatus(status)

		var capacity *int
		if raw := readText(filepath.Join(supply, "capacity")); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				capacity = &n
			}
		}

		if capacity == nil && online == nil {
			continue
		}
		return model.UPSStatus{
			Present:  true,
			Status:   status,
			Capacity: capacity,
			Online:   online,
		}
	}
	return model.UPSStatus{}
}

package protocol

import (
	"sort"
	"strings"
)

// Remote command names used directly by the client
const (
	RemotePlay  = "PLAY"
	RemotePause = "PAUSE"
)

// remoteCodes maps button names of the appliance remote to their infrared codes
var remoteCodes = map[string]uint32{
	"0":           0x76899867,
	"1":           0x7689f00f,
	"2":           0x768908f7,
	"3":           0x76898877,
	"4":           0x768948b7,
	"5":           0x7689c837,
	"6":           0x768928d7,
	"7":           0x7689a857,
	"8":           0x76896897,
	"9":           0x7689e817,
	"DOWN":        0x7689b04f,
	"LEFT":        0x7689906f,
	"RIGHT":       0x7689d02f,
	"UP":          0x7689e01f,
	"VOLDOWN":     0x768900ff,
	"VOLUP":       0x7689807f,
	"POWER":       0x768940bf,
	"REW":         0x7689c03f,
	"PAUSE":       0x768920df,
	"FWD":         0x7689a05f,
	"ADD":         0x7689609f,
	"PLAY":        0x768910ef,
	"SEARCH":      0x768958a7,
	"SHUFFLE":     0x7689d827,
	"REPEAT":      0x768938c7,
	"SLEEP":       0x7689b847,
	"NOW_PLAYING": 0x76897887,
	"SIZE":        0x7689f807,
	"BRIGHTNESS":  0x768904fb,
}

// RemoteCode looks up the code for a button name, ignoring case
func RemoteCode(name string) (uint32, bool) {
	code, ok := remoteCodes[NormalizeRemoteName(name)]
	return code, ok
}

// NormalizeRemoteName returns the canonical table key for a button name
func NormalizeRemoteName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// RemoteCodeNames returns every known button name in sorted order
func RemoteCodeNames() []string {
	names := make([]string, 0, len(remoteCodes))
	for name := range remoteCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

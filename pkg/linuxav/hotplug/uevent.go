// Package hotplug listens for kernel device events over netlink.
//
// The monitor reads NETLINK_KOBJECT_UEVENT broadcasts directly, so it needs
// neither cgo nor libudev. Parsing is separated from the socket so that the
// uevent format can be tested on any platform.
package hotplug

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Actions reported by the kernel.
const (
	ActionAdd     = "add"
	ActionRemove  = "remove"
	ActionChange  = "change"
	ActionMove    = "move"
	ActionBind    = "bind"
	ActionUnbind  = "unbind"
	ActionOnline  = "online"
	ActionOffline = "offline"
)

// Subsystems of interest.
const (
	SubsystemSound = "sound"
	SubsystemUSB   = "usb"
)

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // kernel object path, e.g. /devices/pci0000:00/.../sound/card1
	Subsystem string
	DevType   string
	DevName   string // e.g. snd/controlC1
	DevPath   string
	Env       map[string]string
}

var (
	controlDevName = regexp.MustCompile(`^snd/controlC(\d+)$`)
	cardKObj       = regexp.MustCompile(`/sound/card(\d+)$`)
)

// SoundCard returns the card number when the event describes a whole sound
// card rather than one of its PCM or control nodes.
func (e Event) SoundCard() (int, bool) {
	if e.Subsystem != SubsystemSound {
		return 0, false
	}
	if m := controlDevName.FindStringSubmatch(e.DevName); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if m := cardKObj.FindStringSubmatch(e.KObj); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	return 0, false
}

// TopologyChange reports whether the event can alter the set of sound cards.
func (e Event) TopologyChange() bool {
	if _, ok := e.SoundCard(); !ok {
		return false
	}
	switch e.Action {
	case ActionAdd, ActionRemove, ActionChange:
		return true
	default:
		return false
	}
}

var libudevMagic = []byte("libudev")

// ParseUEvent parses "ACTION@KOBJ\0KEY=VALUE\0...". Messages relayed by
// udevd carry a binary header, which is skipped. It returns nil for anything
// that is not a uevent.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}
	if bytes.HasPrefix(data, libudevMagic) {
		data = skipUdevHeader(data)
	}

	fields := bytes.Split(data, []byte{0})
	action, kobj, ok := strings.Cut(string(fields[0]), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(string(f), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVTYPE":
			ev.DevType = value
		case "DEVNAME":
			ev.DevName = value
		case "DEVPATH":
			ev.DevPath = value
		}
	}
	return ev
}

// skipUdevHeader finds the first NUL-terminated chunk that looks like
// "action@path" after the udevd header.
func skipUdevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		chunk := rest
		if end := bytes.IndexByte(rest, 0); end >= 0 {
			chunk = rest[:end]
		}
		if at := bytes.IndexByte(chunk, '@'); at > 0 && at < 20 {
			return rest
		}
	}
	return data
}

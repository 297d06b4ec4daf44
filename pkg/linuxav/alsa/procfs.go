package alsa

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultRoot is where the kernel exposes ALSA state.
const DefaultRoot = "/proc/asound"

// ProcFS reads ALSA state from a procfs tree. Root may point at a copy for tests.
type ProcFS struct {
	Root string
}

func (p ProcFS) root() string {
	if p.Root == "" {
		return DefaultRoot
	}
	return p.Root
}

// Cards lists installed sound cards.
func (p ProcFS) Cards() ([]Card, error) {
	f, err := os.Open(filepath.Join(p.root(), "cards"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCards(f)
}

// PlaybackDevices lists every playback PCM that publishes a stream descriptor.
// Cards without descriptors (on-board codecs) are skipped since their
// capabilities are not visible without opening the device.
func (p ProcFS) PlaybackDevices() ([]Device, error) {
	cards, err := p.Cards()
	if err != nil {
		return nil, fmt.Errorf("read card list: %w", err)
	}

	var devices []Device
	for _, card := range cards {
		cardDir := filepath.Join(p.root(), "card"+strconv.Itoa(card.Number))
		streams, err := filepath.Glob(filepath.Join(cardDir, "stream[0-9]*"))
		if err != nil {
			return nil, err
		}
		sort.Strings(streams)

		for _, streamPath := range streams {
			num, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(streamPath), "stream"))
			if err != nil {
				continue
			}
			formats, err := readStream(streamPath)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", streamPath, err)
			}
			if len(formats) == 0 {
				continue
			}

			dev := Device{Card: card, DeviceNumber: num, Formats: formats}
			if hw, ok := p.currentParams(cardDir, num); ok {
				dev.Current = &hw
			}
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

func readStream(path string) ([]StreamFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseStream(f)
}

func (p ProcFS) currentParams(cardDir string, device int) (HWParams, bool) {
	path := filepath.Join(cardDir, fmt.Sprintf("pcm%dp", device), "sub0", "hw_params")
	f, err := os.Open(path)
	if err != nil {
		return HWParams{}, false
	}
	defer f.Close()

	hw, ok, err := ParseHWParams(f)
	if err != nil {
		return HWParams{}, false
	}
	return hw, ok
}

// Available reports whether the procfs tree exists.
func (p ProcFS) Available() bool {
	_, err := os.Stat(filepath.Join(p.root(), "cards"))
	return err == nil
}

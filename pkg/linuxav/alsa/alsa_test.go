package alsa

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleCards = ` 0 [PCH            ]: HDA-Intel - HDA Intel PCH
                      HDA Intel PCH at 0xf7f10000 irq 32
 1 [D10            ]: USB-Audio - Topping D10
                      Topping Topping D10 at usb-0000:00:14.0-2, high speed
`

const sampleStream = `Topping Topping D10 at usb-0000:00:14.0-2, high speed : USB Audio

Playback:
  Status: Running
    Interface = 1
    Altset = 1
    Packet Size = 104
    Momentary freq = 96000 Hz (0xc.0000)
  Interface 1
    Altset 1
    Format: S32_LE
    Channels: 2
    Endpoint: 0x05 (5 OUT) (ASYNC)
    Rates: 44100, 48000, 88200, 96000, 176400, 192000, 352800, 384000
    Data packet interval: 125 us
    Bits: 32
  Interface 1
    Altset 2
    Format: S24_3LE
    Channels: 2
    Endpoint: 0x05 (5 OUT) (ASYNC)
    Rates: 44100, 48000, 88200, 96000
    Data packet interval: 125 us
    Bits: 24

Capture:
  Status: Stop
  Interface 2
    Altset 1
    Format: S16_LE
    Channels: 1
    Rates: 48000
`

func TestParseCards(t *testing.T) {
	cards, err := ParseCards(strings.NewReader(sampleCards))
	if err != nil {
		t.Fatalf("ParseCards() error: %v", err)
	}

	want := []Card{
		{Number: 0, ID: "PCH", Driver: "HDA-Intel", Name: "HDA Intel PCH", LongName: "HDA Intel PCH at 0xf7f10000 irq 32"},
		{Number: 1, ID: "D10", Driver: "USB-Audio", Name: "Topping D10", LongName: "Topping Topping D10 at usb-0000:00:14.0-2, high speed"},
	}
	if !reflect.DeepEqual(cards, want) {
		t.Errorf("ParseCards() = %+v, want %+v", cards, want)
	}
}

func TestParseCardsEmpty(t *testing.T) {
	cards, err := ParseCards(strings.NewReader("--- no soundcards ---\n"))
	if err != nil {
		t.Fatalf("ParseCards() error: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("expected no cards, got %d", len(cards))
	}
}

func TestParseStream(t *testing.T) {
	formats, err := ParseStream(strings.NewReader(sampleStream))
	if err != nil {
		t.Fatalf("ParseStream() error: %v", err)
	}
	if len(formats) != 2 {
		t.Fatalf("expected 2 playback formats, got %d: %+v", len(formats), formats)
	}

	if formats[0].Format != "S32_LE" || formats[0].BitDepth() != 32 || len(formats[0].Rates) != 8 {
		t.Errorf("unexpected first format: %+v", formats[0])
	}
	if formats[1].Format != "S24_3LE" || formats[1].BitDepth() != 24 || formats[1].Channels != 2 {
		t.Errorf("unexpected second format: %+v", formats[1])
	}
	if !reflect.DeepEqual(formats[1].Rates, []int{44100, 48000, 88200, 96000}) {
		t.Errorf("unexpected rates: %v", formats[1].Rates)
	}
}

func TestParseRatesContinuous(t *testing.T) {
	got := parseRates("32000 - 96000 (continuous)")
	want := []int{32000, 44100, 48000, 64000, 88200, 96000}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseRates() = %v, want %v", got, want)
	}
}

func TestParseHWParams(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   HWParams
		wantOK bool
	}{
		{
			name:   "closed",
			input:  "closed\n",
			wantOK: false,
		},
		{
			name:   "open",
			input:  "access: RW_INTERLEAVED\nformat: S24_3LE\nsubformat: STD\nchannels: 2\nrate: 96000 (96000/1)\nperiod_size: 1024\n",
			want:   HWParams{Format: "S24_3LE", Channels: 2, Rate: 96000},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseHWParams(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseHWParams() error: %v", err)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseHWParams() = %+v, %v; want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFormatBits(t *testing.T) {
	tests := map[string]int{
		"S16_LE":     16,
		"S24_3LE":    24,
		"S24_LE":     24,
		"S32_LE":     32,
		"U8":         8,
		"FLOAT_LE":   32,
		"FLOAT64_LE": 64,
		"DSD_U32_BE": 32,
		"MU_LAW":     0,
		"":           0,
	}
	for in, want := range tests {
		if got := FormatBits(in); got != want {
			t.Errorf("FormatBits(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestFormatALSADevice(t *testing.T) {
	if got := FormatALSADevice("D10", 0); got != "hw:D10,0" {
		t.Errorf("FormatALSADevice() = %q", got)
	}
}

func TestProcFSPlaybackDevices(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("cards", sampleCards)
	write("card1/stream0", sampleStream)
	write("card1/pcm0p/sub0/hw_params", "format: S32_LE\nchannels: 2\nrate: 192000 (192000/1)\n")

	fs := ProcFS{Root: root}
	if !fs.Available() {
		t.Fatal("expected procfs tree to be available")
	}

	devices, err := fs.PlaybackDevices()
	if err != nil {
		t.Fatalf("PlaybackDevices() error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device (card without descriptors skipped), got %d", len(devices))
	}

	dev := devices[0]
	if dev.ALSADevice() != "hw:D10,0" {
		t.Errorf("ALSADevice() = %q", dev.ALSADevice())
	}
	if dev.Current == nil || dev.Current.Rate != 192000 {
		t.Errorf("unexpected current params: %+v", dev.Current)
	}
}

func TestProcFSMissing(t *testing.T) {
	fs := ProcFS{Root: filepath.Join(t.TempDir(), "missing")}
	if fs.Available() {
		t.Error("expected missing tree to be unavailable")
	}
	if _, err := fs.PlaybackDevices(); err == nil {
		t.Error("expected error for missing tree")
	}
}

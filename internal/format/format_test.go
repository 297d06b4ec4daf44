package format

import (
	"errors"
	"testing"
)

func TestDescriptorValid(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want bool
	}{
		{"complete", Descriptor{24, 96000, 2, "alac"}, true},
		{"zero bits", Descriptor{0, 96000, 2, "alac"}, false},
		{"zero rate", Descriptor{24, 0, 2, "alac"}, false},
		{"zero channels", Descriptor{24, 96000, 0, "alac"}, false},
		{"empty tag", Descriptor{24, 96000, 2, ""}, false},
		{"zero value", Descriptor{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqualityFlavours(t *testing.T) {
	a := Descriptor{24, 44100, 2, "alac"}
	b := Descriptor{24, 44100.4, 2, "lpcm"}
	c := Descriptor{24, 44100.6, 2, "alac"}

	if a.Equal(b) {
		t.Error("Equal should be exact on every field")
	}
	if !a.SameAs(b) {
		t.Error("SameAs should round the rate and ignore the tag")
	}
	if a.SameAs(c) {
		t.Error("44100.6 rounds to 44101 and should differ")
	}
	if !a.Matches(c) {
		t.Error("Matches truncates, 44100.6 should match 44100")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Descriptor
		wantErr bool
	}{
		{"24/96000/2", Descriptor{24, 96000, 2, DefaultTag}, false},
		{"16/44.1/2/alac", Descriptor{16, 44100, 2, "alac"}, false},
		{" 32 / 192000 / 2 ", Descriptor{32, 192000, 2, DefaultTag}, false},
		{"24/96000", Descriptor{}, true},
		{"x/96000/2", Descriptor{}, true},
		{"24/96000/0", Descriptor{}, true},
		{"24/96000/2/a/b", Descriptor{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNotation) {
					t.Fatalf("expected ErrInvalidNotation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if back, _ := Parse(got.Notation()); back != got {
				t.Errorf("Notation round trip = %+v, want %+v", back, got)
			}
		})
	}
}

func TestString(t *testing.T) {
	d := Descriptor{24, 88200, 2, "alac"}
	if got, want := d.String(), "24-bit/88.2 kHz/2ch alac"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (Descriptor{}).String(); got != "invalid" {
		t.Errorf("zero String() = %q", got)
	}
}

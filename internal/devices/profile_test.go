package devices

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
[[devices]]
id = "dac"
name = "USB DAC"
formats = ["24/44100/2", "24/48000/2", "24/96000/2", "32/192000/2"]
current = "24/44100/2"

[[devices]]
id = "hdmi"
formats = ["16/48000/2"]
`

func TestProfileRecords(t *testing.T) {
	p, err := ParseProfile([]byte(sampleProfile))
	require.NoError(t, err)

	records, err := p.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "USB DAC", records[0].Name)
	assert.Len(t, records[0].Formats, 4)
	assert.Equal(t, hi24_441, records[0].Current)
	assert.Equal(t, uint32(32), records[0].MaxBitDepth())

	// Name defaults to the id
	assert.Equal(t, "hdmi", records[1].Name)
	assert.False(t, records[1].Current.Valid())
}

func TestProfileValidation(t *testing.T) {
	tests := []struct {
		name    string
		profile string
	}{
		{"invalid toml", "[[devices]\nid ="},
		{"missing id", "[[devices]]\nname = \"x\"\n"},
		{"duplicate id", "[[devices]]\nid = \"a\"\n[[devices]]\nid = \"a\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.profile))
			assert.True(t, HasCode(err, ErrCodeInvalidProfile), "got %v", err)
		})
	}

	p, err := ParseProfile([]byte("[[devices]]\nid = \"a\"\nformats = [\"24/fast/2\"]\n"))
	require.NoError(t, err)
	_, err = p.Records()
	assert.True(t, HasCode(err, ErrCodeInvalidProfile))
}

func TestProfileDetector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))

	det := NewProfileDetector(path)
	records, err := det.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Edits are picked up on the next call
	require.NoError(t, os.WriteFile(path, []byte("[[devices]]\nid = \"only\"\nformats = [\"24/96000/2\"]\n"), 0o644))
	records, err = det.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "only", records[0].ID)

	_, err = NewProfileDetector(filepath.Join(t.TempDir(), "missing.toml")).ListDevices(context.Background())
	assert.True(t, HasCode(err, ErrCodeInvalidProfile))
}

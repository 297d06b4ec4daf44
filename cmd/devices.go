package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/formatsync/internal/devices"
)

// Device sources.
const (
	SourceALSA    = "alsa"
	SourceProfile = "profile"
)

// NewDetector returns the detector for source.
func NewDetector(source, profilePath, alsaRoot string) (devices.Detector, error) {
	switch source {
	case SourceALSA, "":
		return devices.NewALSADetector(alsaRoot), nil
	case SourceProfile:
		return devices.NewProfileDetector(profilePath), nil
	default:
		return nil, fmt.Errorf("unknown device source %q, want %s or %s", source, SourceALSA, SourceProfile)
	}
}

type catalogFlags struct {
	source   string
	profile  string
	alsaRoot string
	selected string
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", SourceALSA, "Device source: alsa or profile")
	cmd.Flags().StringVar(&f.profile, "profile", "devices.toml", "Device profile for the profile source")
	cmd.Flags().StringVar(&f.alsaRoot, "alsa-root", "", "ALSA procfs root (default /proc/asound)")
	cmd.Flags().StringVar(&f.selected, "device", "", "Device to select (default: first eligible)")
}

func (f *catalogFlags) load(cmd *cobra.Command) (*devices.Store, error) {
	det, err := NewDetector(f.source, f.profile, f.alsaRoot)
	if err != nil {
		return nil, err
	}
	store := devices.NewStore(det, devices.StoreOptions{PreferredID: f.selected})
	if err := store.Refresh(cmd.Context(), devices.CauseManual); err != nil {
		return nil, err
	}
	return store, nil
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var flags catalogFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List output devices eligible for synchronization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := flags.load(cmd)
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return cmd
}

func printSnapshot(out io.Writer, snap devices.Snapshot) error {
	if len(snap.Devices) == 0 {
		_, err := fmt.Fprintln(out, "No eligible devices")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tCURRENT\tFORMATS")
	for _, d := range snap.Devices {
		mark := ""
		if d.ID == snap.SelectedID {
			mark = "*"
		}
		current := "-"
		if d.Current.Valid() {
			current = d.Current.Notation()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", mark, d.ID, d.Name, current, len(d.Formats))
	}
	return w.Flush()
}

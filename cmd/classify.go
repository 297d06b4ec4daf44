package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/formatsync/internal/classifier"
	"github.com/smazurov/formatsync/internal/detection"
)

// CreateClassifyCmd creates the classify command.
func CreateClassifyCmd() *cobra.Command {
	var showAll bool
	var detect bool
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify player log lines",
		Long: `Reads player log lines from a file, or standard input when no file or "-" is given, ` +
			`and prints the signal each line carries. With --detect the signals are also folded ` +
			`through format detection and the resulting format requests are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var machine *detection.Machine
			if detect {
				machine = detection.NewMachine(detection.Config{DebounceWindow: window})
			}
			return classifyLines(in, cmd.OutOrStdout(), showAll, machine)
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Also print lines without a signal")
	cmd.Flags().BoolVarP(&detect, "detect", "d", false, "Fold signals through format detection")
	cmd.Flags().DurationVar(&window, "debounce-window", detection.DefaultDebounceWindow, "Detection debounce window")
	return cmd
}

func classifyLines(in io.Reader, out io.Writer, showAll bool, machine *detection.Machine) error {
	c := classifier.Default()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Text()
		sig := c.Classify(line)
		if sig == nil {
			if showAll {
				fmt.Fprintf(out, "%d\t-\t%s\n", n, line)
			}
			continue
		}
		fmt.Fprintf(out, "%d\t%s\t%s\n", n, sig.Kind(), describe(sig))

		if machine == nil {
			continue
		}
		in, ok := detection.FromSignal(sig)
		if !ok {
			continue
		}
		for _, req := range machine.Apply(in) {
			fmt.Fprintf(out, "%d\trequest\t%s track=%q reason=%s\n", n, req.Format, req.TrackID, req.Reason)
		}
	}
	return scanner.Err()
}

func describe(sig classifier.Signal) string {
	switch s := sig.(type) {
	case classifier.TrackChanged:
		return fmt.Sprintf("track=%q", s.TrackID)
	case classifier.FormatDescribed:
		return s.Format.String()
	case classifier.PlaybackAdvanceMarker:
		return string(s.Marker)
	default:
		return fmt.Sprint(sig)
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/format"
	"github.com/smazurov/formatsync/internal/negotiation"
)

// CreateNegotiateCmd creates the negotiate command.
func CreateNegotiateCmd() *cobra.Command {
	var flags catalogFlags
	var fallbacks string

	cmd := &cobra.Command{
		Use:   "negotiate <bits/rate/channels[/tag]>",
		Short: "Show which device format a request would select",
		Long: `Negotiates a requested format against the selected device without touching hardware, ` +
			`for example "negotiate 16/44100/2/alac".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested, err := format.Parse(args[0])
			if err != nil {
				return err
			}
			policy := negotiation.DefaultPolicy()
			if cmd.Flags().Changed("fallback") {
				if policy.BitDepthFallbacks, err = negotiation.ParseFallbacks(fallbacks); err != nil {
					return err
				}
			}

			store, err := flags.load(cmd)
			if err != nil {
				return err
			}
			dev, ok := store.Selected()
			if !ok {
				return devices.NewError(devices.ErrCodeDeviceNotFound, "no eligible device", nil)
			}

			m := negotiation.Negotiate(requested, dev, policy)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device:    %s (%s)\n", dev.ID, dev.Name)
			fmt.Fprintf(out, "requested: %s\n", requested)
			fmt.Fprintf(out, "decision:  %s\n", m.Decision)
			if m.Decision != negotiation.DecisionNoMatch {
				fmt.Fprintf(out, "format:    %s\n", m.Format)
				fmt.Fprintf(out, "fallback:  %t\n", m.Fallback)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&fallbacks, "fallback", "16:24", "Bit depth substitutions as from:to pairs")
	return cmd
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bobarin/wellvoice/internal/services"
)

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices offered by the configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			synth, defaultVoice := services.NewSynthesizer(cfg.Providers())
			catalog, ok := synth.(services.VoiceCatalog)
			if !ok {
				return fmt.Errorf("voice catalog is not available: %w", services.ErrNotConfigured)
			}

			voices, err := catalog.ListVoices(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VOICE ID\tNAME\tCATEGORY\t")
			for _, v := range voices {
				mark := ""
				if v.VoiceID == defaultVoice {
					mark = "(default)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.VoiceID, v.Name, v.Category, mark)
			}
			return tw.Flush()
		},
	}
}

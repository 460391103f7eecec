package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bobarin/wellvoice/internal/models"
	"github.com/bobarin/wellvoice/internal/voice"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved voice settings",
	}

	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsPresetCmd())
	cmd.AddCommand(newSettingsPresetsCmd())

	return cmd
}

// withSettings opens the local store, runs fn against the loaded settings
// and prints the result.
func withSettings(cmd *cobra.Command, fn func(m *voice.Manager) error) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	backend, err := openLocal(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	m, err := localSettings(cmd, cfg, backend)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		return err
	}

	printSettings(cmd.OutOrStdout(), m.Settings())
	return nil
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current voice settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSettings(cmd, func(*voice.Manager) error { return nil })
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		enabled    bool
		voiceID    string
		stability  float64
		similarity float64
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings and save them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req models.UpdateVoiceSettingsRequest
			flags := cmd.Flags()
			if flags.Changed("enabled") {
				req.Enabled = &enabled
			}
			if flags.Changed("voice") {
				req.VoiceID = &voiceID
			}
			if flags.Changed("stability") {
				req.Stability = &stability
			}
			if flags.Changed("similarity") {
				req.SimilarityBoost = &similarity
			}
			if req == (models.UpdateVoiceSettingsRequest{}) {
				return fmt.Errorf("nothing to change: pass --enabled, --voice, --stability or --similarity")
			}

			return withSettings(cmd, func(m *voice.Manager) error {
				if err := m.Update(req); err != nil {
					return err
				}
				return m.Save(cmd.Context())
			})
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", true, "Speak replies aloud")
	cmd.Flags().StringVar(&voiceID, "voice", "", "Voice ID (empty resets to the provider default)")
	cmd.Flags().Float64Var(&stability, "stability", models.DefaultStability, "Stability, 0..1")
	cmd.Flags().Float64Var(&similarity, "similarity", models.DefaultSimilarityBoost, "Similarity boost, 0..1")

	return cmd
}

func newSettingsPresetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "preset <name>",
		Short:     "Apply a named preset and save it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: voice.PresetNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd, func(m *voice.Manager) error {
				if err := m.ApplyPreset(args[0]); err != nil {
					return err
				}
				return m.Save(cmd.Context())
			})
		},
	}
}

func newSettingsPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the available presets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range voice.PresetNames() {
				p, _ := voice.LookupPreset(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s stability=%.2f similarity=%.2f\n", name, p.Stability, p.SimilarityBoost)
			}
			return nil
		},
	}
}

func printSettings(w io.Writer, s models.VoiceSettings) {
	fmt.Fprintf(w, "enabled:    %t\n", s.Enabled)
	fmt.Fprintf(w, "voice:      %s\n", s.VoiceID)
	fmt.Fprintf(w, "stability:  %.2f\n", s.Stability)
	fmt.Fprintf(w, "similarity: %.2f\n", s.SimilarityBoost)
}

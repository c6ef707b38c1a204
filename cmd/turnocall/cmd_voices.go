package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hammamikhairi/turnocall/internal/config"
	"github.com/hammamikhairi/turnocall/internal/speech"
)

// newVoicesCmd creates the "turnocall voices" subcommand.
func newVoicesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List TTS voices and the one announcements would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sc := a.cfg.Speech
			if sc.AzureKey == "" || sc.AzureRegion == "" {
				return fmt.Errorf("set %s and %s to list voices", config.EnvAzureKey, config.EnvAzureRegion)
			}

			client := speech.NewAzureClient(sc.AzureKey, sc.AzureRegion, a.log.Named("speech"))
			voices, err := client.ListVoices(cmd.Context())
			if err != nil {
				return err
			}

			selected := speech.SelectVoice(voices, sc.Language, speech.Gender(sc.Gender))
			fmt.Fprint(cmd.OutOrStdout(), voiceTable(voices, selected, sc.Language, all))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list voices of every language")
	return cmd
}

// voiceTable renders voices, marking the selected one. Unless all is
// set, only voices sharing lang's primary subtag are listed.
func voiceTable(voices []speech.Voice, selected *speech.Voice, lang string, all bool) string {
	primary := strings.ToLower(strings.SplitN(lang, "-", 2)[0])

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "VOICE", "LANGUAGE", "GENDER")
	n := 0
	for _, v := range voices {
		if !all && !strings.HasPrefix(strings.ToLower(v.Lang), primary) {
			continue
		}
		mark := ""
		if selected != nil && v.Name == selected.Name {
			mark = "▶"
		}
		t.Row(mark, v.Name, v.Lang, string(v.Gender))
		n++
	}
	if n == 0 {
		return fmt.Sprintf("no voices for %s\n", lang)
	}
	return t.String() + "\n"
}

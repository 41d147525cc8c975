package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soriview/soriview/internal/client"
)

func newVoiceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "voice <audio.webm>",
		Short: "Ask a pre-recorded voice question about the current frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSessionWithRecorder(v, &client.FileRecorder{Path: args[0]})
			if err != nil {
				return err
			}

			// First toggle arms the recorder, second one submits.
			if _, err := sess.ToggleRecording(cmd.Context()); err != nil {
				return err
			}
			result, err := sess.ToggleRecording(cmd.Context())
			if err != nil {
				printSessionLog(cmd, sess)
				return err
			}

			if result.Question != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("Q:"), result.Question)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(result.Answer))
			if result.TTSURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("audio:"), result.TTSURL)
			}
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAskCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the current frame",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(v)
			if err != nil {
				return err
			}

			question := strings.Join(args, " ")
			result, err := sess.Ask(cmd.Context(), question)
			if err != nil {
				printSessionLog(cmd, sess)
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(result.Answer))
			if result.TTSURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("audio:"), result.TTSURL)
			}
			return nil
		},
	}
}

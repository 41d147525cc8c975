package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCaptionCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "caption",
		Short: "Describe the current frame in Korean",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := newSession(v)
			if err != nil {
				return err
			}

			result, err := sess.Caption(cmd.Context())
			if err != nil {
				printSessionLog(cmd, sess)
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(result.KoreanCaption))
			if result.RawCaption != "" && result.RawCaption != result.KoreanCaption {
				fmt.Fprintln(cmd.OutOrStdout(), color.HiBlackString("(%s)", result.RawCaption))
			}
			if result.TTSURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("audio:"), result.TTSURL)
			}
			return nil
		},
	}
}

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soriview/soriview/internal/client"
	"github.com/soriview/soriview/internal/domain"
)

func newLogCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show the recent conversation log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client.New(v.GetString("server"))
			if err != nil {
				return fmt.Errorf("server URL: %w", err)
			}

			entries, err := c.Conversation(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), color.HiBlackString("(no entries)"))
				return nil
			}

			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", actorLabel(e.Actor), e.Text)
			}
			return nil
		},
	}
}

func actorLabel(actor domain.Actor) string {
	switch actor {
	case domain.ActorUser:
		return color.YellowString("you:")
	case domain.ActorAssistant:
		return color.CyanString("soriview:")
	default:
		return color.RedString("system:")
	}
}

// printSessionLog dumps session log entries to stderr after a failed
// exchange, so the user sees the same messages the web client would show.
func printSessionLog(cmd *cobra.Command, sess *client.Session) {
	for _, e := range sess.Log() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", actorLabel(e.Actor), e.Text)
	}
}

// Package cli implements the soriview command line client. It drives the
// same capture-and-ask session logic the web frontend uses, with a frame
// file standing in for the camera and pre-recorded audio for the microphone.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soriview/soriview/internal/client"
)

const (
	defaultServerURL = "http://localhost:8080"
	envPrefix        = "SORIVIEW"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "soriview",
		Short:         "Soriview CLI: describe scenes and ask questions about them",
		Long:          "soriview talks to a Soriview server: it sends a camera frame for a spoken Korean scene description, and follow-up questions as text or recorded voice.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().String("server", defaultServerURL, "Soriview server base URL")
	rootCmd.PersistentFlags().String("frame", "frame.jpg", "path to the camera frame image")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("frame", rootCmd.PersistentFlags().Lookup("frame"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newCaptionCmd(v),
		newAskCmd(v),
		newVoiceCmd(v),
		newLogCmd(v),
	)

	return rootCmd
}

// newSession wires a Session against the configured server, reading frames
// from the configured file.
func newSession(v *viper.Viper) (*client.Session, error) {
	return newSessionWithRecorder(v, nil)
}

func newSessionWithRecorder(v *viper.Viper, rec client.Recorder) (*client.Session, error) {
	c, err := client.New(v.GetString("server"))
	if err != nil {
		return nil, fmt.Errorf("server URL: %w", err)
	}

	source := client.FileSource{Path: v.GetString("frame")}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	return client.NewSession(c, source, rec, client.NoopPlayer{}, logger), nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/immxrtalbeast/meetroom/internal/peer"
	"github.com/immxrtalbeast/meetroom/lib/logger/slogpretty"
	"github.com/spf13/cobra"
)

const (
	bindingSocket = "socket"
	bindingPubSub = "pubsub"
)

var (
	flagServer     string
	flagToken      string
	flagName       string
	flagUser       string
	flagPassword   string
	flagBinding    string
	flagVideo      string
	flagAudio      string
	flagSTUN       []string
	flagRetryDelay time.Duration
	flagMaxRetries int
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "meetroom",
	Short: "Join meetroom video rooms from the command line",
	Long: `meetroom creates and joins rooms on a meetroom server and streams
local IVF/Ogg files to every other participant over WebRTC.

Inside a room, type a line to chat, /peers to list connections,
/share <file.ivf> to share a screen recording, /unshare to stop and
/quit to leave.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", envOr("MEETROOM_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("MEETROOM_TOKEN"), "bearer token from /auth/login")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	for _, c := range []*cobra.Command{createCmd, joinCmd} {
		c.Flags().StringVarP(&flagName, "name", "n", "guest", "display name used to build the participant id")
		c.Flags().StringVarP(&flagUser, "user", "u", "", "participant id (generated from --name when empty)")
		c.Flags().StringVarP(&flagPassword, "password", "p", "", "room password")
		c.Flags().StringVarP(&flagBinding, "binding", "b", bindingSocket, "signaling binding: socket or pubsub")
		c.Flags().StringVar(&flagVideo, "video", "", "IVF (VP8) file to stream as camera")
		c.Flags().StringVar(&flagAudio, "audio", "", "Ogg (Opus) file to stream as microphone")
		c.Flags().StringSliceVar(&flagSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs")
		c.Flags().DurationVar(&flagRetryDelay, "retry-delay", peer.DefaultRetryPolicy().Delay, "delay before re-creating a failed connection")
		c.Flags().IntVar(&flagMaxRetries, "max-retries", peer.DefaultRetryPolicy().MaxAttempts, "re-creation attempts per peer")
	}

	rootCmd.AddCommand(createCmd, joinCmd, infoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: level},
	}
	return slog.New(opts.NewPrettyHandler(os.Stderr))
}

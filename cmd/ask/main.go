// Command ask sends one text message to the agent and prints the reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/room4-2/streamchat/config"
	"github.com/room4-2/streamchat/logging"
	"github.com/room4-2/streamchat/messages"
	"github.com/room4-2/streamchat/sender"
	"github.com/room4-2/streamchat/session"
	"github.com/room4-2/streamchat/stream"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.ServerURL, "agent server base URL")
	transport := flag.String("transport", cfg.Transport, "push channel: sse or websocket")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for the reply")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(text) == "" {
		text = "Hello! Say hi back in one sentence."
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	var source stream.Source
	if *transport == config.TransportWebsocket {
		source, err = stream.NewWebSocketSource(*serverURL, nil)
	} else {
		source, err = stream.NewSSESource(*serverURL, nil)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid server URL")
	}
	sink, err := sender.New(*serverURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid server URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	id := session.NewID()
	sub, err := source.Subscribe(ctx, id, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe")
	}
	defer sub.Close()

	// Next does not watch ctx, so closing the subscription unblocks it
	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	if err := sink.Send(ctx, id, messages.NewTextMessage(text)); err != nil {
		logger.Fatal().Err(err).Msg("failed to send text")
	}
	logger.Debug().Str("session", id).Str("text", text).Msg("sent text")

	for {
		ev, err := sub.Next()
		if err != nil {
			if stream.IsDecodeError(err) {
				logger.Warn().Err(err).Msg("skipping malformed event")
				continue
			}
			if ctx.Err() != nil {
				logger.Warn().Msg("no complete reply before timeout")
			} else {
				logger.Error().Err(err).Msg("stream ended")
			}
			os.Exit(1)
		}

		switch ev.Kind() {
		case messages.KindText:
			fmt.Print(ev.Data)
		case messages.KindTurnComplete:
			fmt.Println()
			return
		case messages.KindInterrupted:
			fmt.Println()
			logger.Info().Msg("reply interrupted")
			return
		}
	}
}

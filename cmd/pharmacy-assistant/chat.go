package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pharmacyrt "github.com/codewandler/pharmacyrt-go"
	"github.com/codewandler/pharmacyrt-go/channel"
	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/internal/pharmacy"
	"github.com/codewandler/pharmacyrt-go/processor"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/cobra"
)

const chatHelp = `type a question and press enter to send it
  /mute     mute the microphone
  /unmute   unmute the microphone
  /quit     end the session`

func newChatCommand(root *rootOptions) *cobra.Command {
	var (
		noAudio    bool
		localTools bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the pharmacy assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			logger := slog.Default()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			instructions := cfg.Instructions
			if instructions == "" {
				instructions = pharmacy.SystemPrompt
			}

			opts := []pharmacyrt.ClientOption{
				pharmacyrt.WithLogger(logger),
				pharmacyrt.WithBackendURL(cfg.BackendURL),
				pharmacyrt.WithTransportKind(cfg.Transport),
				pharmacyrt.WithModel(cfg.Model),
				pharmacyrt.WithVoice(cfg.Voice),
				pharmacyrt.WithLanguage(cfg.Language),
				pharmacyrt.WithTranscriptionModel(cfg.TranscriptionModel),
				pharmacyrt.WithTemperature(cfg.Temperature),
				pharmacyrt.WithMaxOutputTokens(cfg.MaxOutputTokens),
				pharmacyrt.WithInstruction(instructions),
				pharmacyrt.WithTools(pharmacy.Tools()...),
				pharmacyrt.WithInitialMessage(cfg.InitialMessage),
				pharmacyrt.WithCallTTL(cfg.ParsedCallTTL()),
				pharmacyrt.WithStartMuted(cfg.StartMuted),
				pharmacyrt.WithHandlers(printHandlers()),
			}
			if localTools {
				opts = append(opts, pharmacyrt.WithExecutor(pharmacy.NewCatalog()))
			}

			if !noAudio {
				if err := portaudio.Initialize(); err != nil {
					return fmt.Errorf("init audio: %w", err)
				}
				defer func() { _ = portaudio.Terminate() }()
				opts = append(opts, pharmacyrt.WithMicrophone(mic{sampleRate: cfg.MicSampleRate}))
			}

			client := pharmacyrt.New(opts...)

			openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err = client.Open(openCtx)
			cancel()
			if err != nil {
				var mErr *channel.MediaAccessError
				if errors.As(err, &mErr) {
					fmt.Fprintln(os.Stderr, mErr.Error())
				}
				return err
			}
			defer client.Close()

			if !noAudio {
				if err := play(client.Playback(), client.PlaybackSampleRate(), logger); err != nil {
					logger.Warn("speaker unavailable, continuing without playback", slog.Any("err", err))
				}
			}

			fmt.Println(chatHelp)
			printMuteState(client)
			return readCommands(ctx, client)
		},
	}

	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "text only, without microphone and speaker")
	cmd.Flags().BoolVar(&localTools, "local-tools", false, "run pharmacy functions in process instead of on the backend")
	return cmd
}

func readCommands(ctx context.Context, client *pharmacyrt.Client) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case "/quit":
				return nil
			case "/mute":
				client.Mute()
				printMuteState(client)
			case "/unmute":
				client.Unmute()
				printMuteState(client)
			default:
				if !client.IsConnected() {
					return errors.New("session disconnected")
				}
				if !client.SendText(line) {
					fmt.Println("! message not sent")
				}
			}
		}
	}
}

func printMuteState(client *pharmacyrt.Client) {
	if client.IsMuted() {
		fmt.Println("[microphone muted]")
	} else {
		fmt.Println("[microphone live]")
	}
}

func printHandlers() processor.Handlers {
	return processor.Handlers{
		OnSessionCreated: func(s events.Session) {
			fmt.Printf("[session %s]\n", s.ID)
		},
		OnUserMessage: func(itemID, transcript string) {
			fmt.Println("you>", transcript)
		},
		OnAIThinking: func(thinking bool) {
			if thinking {
				fmt.Println("...")
			}
		},
		OnAIMessage: func(itemID, transcript string) {
			fmt.Println("assistant>", transcript)
		},
		OnFunctionCall: func(name string, args map[string]any) {
			fmt.Printf("[%s %v]\n", name, args)
		},
		OnError: func(e *events.ErrorEvent) {
			fmt.Println("! error:", e.Error())
		},
	}
}

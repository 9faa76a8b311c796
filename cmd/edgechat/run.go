package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/chat"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/engine"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/events"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/transcript"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <prompt>",
	Short: "Run a single turn against a local model and stream the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		engineName, _ := cmd.Flags().GetString("engine")
		attach, _ := cmd.Flags().GetString("attach")
		imagePath, _ := cmd.Flags().GetString("image")
		echoEvents, _ := cmd.Flags().GetBool("echo-events")

		cfg, err := loadSettings()
		if err != nil {
			return err
		}

		facade, err := buildEngine(engineName)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := transcript.NewStore()
		options := []chat.OrchestratorOption{
			chat.WithSettings(cfg),
			chat.WithLogger(log.Logger),
			chat.WithEventSink(&consoleSink{out: cmd.OutOrStdout()}),
		}

		eg, ctx := errgroup.WithContext(ctx)

		var router *events.EventRouter
		if echoEvents {
			router, err = events.NewEventRouter(
				events.WithLogger(events.NewWatermillLogger(log.Logger)),
			)
			if err != nil {
				return err
			}
			defer func() { _ = router.Close() }()
			router.AddHandler("echo-events", "chat", func(msg *message.Message) error {
				fmt.Fprintln(cmd.ErrOrStderr(), string(msg.Payload))
				return nil
			})
			options = append(options, chat.WithEventSink(router.Sink("chat")))
			eg.Go(func() error { return router.Run(ctx) })
			<-router.Running()
		}

		orchestrator := chat.NewOrchestrator(store, options...)
		if err := orchestrator.RegisterModel(ctx, model, facade); err != nil {
			return err
		}
		defer orchestrator.DestroyModel(model)

		turnOptions := []chat.TurnOption{}
		if attach != "" {
			turnOptions = append(turnOptions, chat.WithAttachment(attach))
		}
		if imagePath != "" {
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return errors.Wrapf(err, "could not read image %s", imagePath)
			}
			turnOptions = append(turnOptions, chat.WithImage(image))
		}

		turn := chat.NewTurn(model, strings.Join(args, " "), turnOptions...)
		handle, err := orchestrator.Generate(ctx, turn, nil)
		if err != nil {
			return err
		}

		eg.Go(func() error {
			defer stop()
			if err := handle.Wait(ctx); err != nil {
				// ^C lands here as a cancelled context
				if errors.Is(err, context.Canceled) {
					orchestrator.Cancel(model)
					return nil
				}
				return err
			}
			return nil
		})

		if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("model", "m", "llama3", "model name to run")
	runCmd.Flags().String("engine", "ollama", "engine backend (ollama, echo)")
	runCmd.Flags().StringP("attach", "a", "", "file or URL whose text is prepended to the prompt")
	runCmd.Flags().StringP("image", "i", "", "image file to attach")
	runCmd.Flags().Bool("echo-events", false, "print raw event JSON to stderr")
}

func buildEngine(name string) (engine.Facade, error) {
	switch name {
	case "ollama":
		return engine.NewOllamaEngine(), nil
	case "echo":
		return engine.NewEchoEngine(), nil
	}
	return nil, errors.Errorf("unknown engine %s", name)
}

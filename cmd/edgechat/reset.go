package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/chat"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/transcript"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Recreate a model's engine session, retrying until it comes back",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		engineName, _ := cmd.Flags().GetString("engine")

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

		orchestrator := chat.NewOrchestrator(transcript.NewStore(),
			chat.WithSettings(cfg),
			chat.WithLogger(log.Logger),
		)
		if err := orchestrator.RegisterModel(ctx, model, facade); err != nil {
			return err
		}
		defer orchestrator.DestroyModel(model)

		if err := orchestrator.ResetSession(ctx, model); err != nil {
			return err
		}
		cmd.Println("session reset")
		return nil
	},
}

func init() {
	resetCmd.Flags().StringP("model", "m", "llama3", "model name to reset")
	resetCmd.Flags().String("engine", "ollama", "engine backend (ollama, echo)")
}

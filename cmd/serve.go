package cmd

import (
	"fmt"

	"github.com/killallgit/strand/pkg/config"
	"github.com/killallgit/strand/pkg/framer"
	"github.com/killallgit/strand/pkg/logger"
	"github.com/killallgit/strand/pkg/relay"
	"github.com/killallgit/strand/pkg/router"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/llms/ollama"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Starts the HTTP relay. Requests to /api/generate are forwarded to
the upstream model and answered as a server-sent frame stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()

		streamer, err := framer.NewOllamaStreamer(
			settings.Upstream.URL,
			settings.Upstream.Model,
			settings.Upstream.SystemPrompt,
		)
		if err != nil {
			return fmt.Errorf("failed to connect upstream: %w", err)
		}

		rt, err := buildRouter(settings)
		if err != nil {
			return err
		}

		srv := relay.NewServer(framer.New(streamer, nil), rt, settings.Relay.Timeout)
		logger.Info("serving upstream model %s", settings.Upstream.Model)
		return srv.ListenAndServe(settings.Relay.Listen)
	},
}

// buildRouter wires the capability router. A dedicated router model
// gets the model-backed classifier; otherwise the keyword heuristic
// serves.
func buildRouter(settings *config.Config) (router.Router, error) {
	if settings.Upstream.RouterModel == "" {
		return router.KeywordRouter{}, nil
	}

	llm, err := ollama.New(
		ollama.WithServerURL(settings.Upstream.URL),
		ollama.WithModel(settings.Upstream.RouterModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create router model: %w", err)
	}
	return router.NewLLMRouter(llm), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "listen address (overrides relay.listen)")
	viper.BindPFlag("relay.listen", serveCmd.Flags().Lookup("listen"))

	serveCmd.Flags().String("model", "", "upstream model (overrides upstream.model)")
	viper.BindPFlag("upstream.model", serveCmd.Flags().Lookup("model"))
}

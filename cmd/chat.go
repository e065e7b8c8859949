package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/killallgit/strand/pkg/blob"
	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/client"
	"github.com/killallgit/strand/pkg/config"
	"github.com/killallgit/strand/pkg/persist"
	"github.com/killallgit/strand/pkg/render"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	thinkingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	artifactStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat against a running relay",
	Long: `Interactive chat session. Responses stream in at a readable pace
and every turn is recorded in the local conversation database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()

		store, err := persist.OpenSQLite(settings.Persist.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		blobs, err := blob.NewDiskStore(settings.Blob.Directory)
		if err != nil {
			return err
		}

		renderOpts := []render.Option{render.WithInterval(settings.Render.Interval)}
		if settings.Render.Instant {
			renderOpts = append(renderOpts, render.WithInstantCatchUp())
		}

		ctrl := client.New(settings.Relay.BaseURL, store, blobs,
			client.WithDebounce(settings.Persist.Debounce),
			client.WithRenderOptions(renderOpts...),
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conversationID := viper.GetString("chat.conversation")
		if conversationID == "" {
			conversationID = uuid.NewString()
		} else {
			// Continuing an existing conversation: replay the transcript
			conv, err := ctrl.Conversation(ctx, conversationID, settings.Upstream.Model)
			if err != nil {
				return err
			}
			printTranscript(conv)
		}

		return runChatLoop(ctx, ctrl, conversationID, viper.GetBool("chat.show_thinking"))
	},
}

func printTranscript(conv chat.Conversation) {
	for _, msg := range conv.Messages {
		if msg.IsUser() {
			fmt.Println(promptStyle.Render("> ") + msg.Content)
		} else {
			fmt.Println(msg.Content)
		}
	}
	if last, ok := chat.LastMessage(conv); ok && last.Errored {
		fmt.Println(errorStyle.Render("(last response ended with an error)"))
	}
}

func runChatLoop(ctx context.Context, ctrl *client.Controller, conversationID string, showThinking bool) error {
	fmt.Println("Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		printer := newStreamPrinter(showThinking)
		final, err := ctrl.Send(ctx, conversationID, input, client.SendOptions{
			OnRender: printer.apply,
		})
		printer.finish()
		if err != nil {
			fmt.Println(errorStyle.Render("Failed to save the response: " + err.Error()))
			continue
		}

		if final.Errored {
			fmt.Println(errorStyle.Render("(response ended with an error)"))
		}
		for _, art := range final.Artifacts {
			fmt.Println(artifactStyle.Render("attachment: " + art.URL))
		}
		if len(final.Suggestions) > 0 {
			fmt.Println(suggestionStyle.Render("try: " + strings.Join(final.Suggestions, " | ")))
		}
	}

	return scanner.Err()
}

// streamPrinter turns successive render views into incremental terminal
// output. The displayed text only ever grows, so each view prints just
// the new suffix.
type streamPrinter struct {
	showThinking    bool
	printedThinking int
	printedText     int
	inThinking      bool
}

func newStreamPrinter(showThinking bool) *streamPrinter {
	return &streamPrinter{showThinking: showThinking}
}

func (p *streamPrinter) apply(v render.View) {
	if p.showThinking {
		thinking := []rune(v.Thinking)
		if len(thinking) > p.printedThinking {
			p.inThinking = true
			fmt.Print(thinkingStyle.Render(string(thinking[p.printedThinking:])))
			p.printedThinking = len(thinking)
		}
	}

	text := []rune(v.Text)
	if len(text) > p.printedText {
		if p.inThinking {
			fmt.Println()
			p.inThinking = false
		}
		fmt.Print(string(text[p.printedText:]))
		p.printedText = len(text)
	}
}

func (p *streamPrinter) finish() {
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("conversation", "", "conversation id to continue")
	viper.BindPFlag("chat.conversation", chatCmd.Flags().Lookup("conversation"))

	chatCmd.Flags().Bool("show-thinking", true, "show the model's reasoning trace")
	viper.BindPFlag("chat.show_thinking", chatCmd.Flags().Lookup("show-thinking"))
}

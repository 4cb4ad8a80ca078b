package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parlo-ai/parlo/pkg/chat"
	"github.com/parlo-ai/parlo/pkg/cli"
	"github.com/parlo-ai/parlo/pkg/server"
	"github.com/parlo-ai/parlo/pkg/session"
)

var chatTimezone string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat against the orchestrator in the terminal",
	Long: `Talk to the orchestrator without the HTTP surface: each line you
type runs one full turn (LLM rounds plus tool calls) and prints the
streamed reply. Type /reset to clear the conversation and /quit to
leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg.Speech.Disabled = true // terminal chat is text only
		srv := buildServer(cfg)
		styles := cli.NewStyles(cli.DefaultTheme)

		sess := srv.Store.GetOrCreate("", "")
		fmt.Println(styles.Dim.Render("session " + sess.ID + " (/reset clears, /quit exits)"))

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(styles.User.Render("you> "))
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/reset":
				srv.Store.Reset(sess.ID)
				sess = srv.Store.GetOrCreate("", "")
				fmt.Println(styles.Dim.Render("new session " + sess.ID))
				continue
			}

			if err := runTurn(cmd.Context(), srv, sess, line, styles); err != nil {
				cli.PrintError("%v", err)
			}
		}
	},
}

// runTurn drives one streamed turn and renders its events.
func runTurn(ctx context.Context, srv *server.Server, sess *session.Session, input string, styles cli.Styles) error {
	if err := sess.BeginTurn(ctx); err != nil {
		return err
	}
	defer sess.EndTurn()

	all, err := srv.Catalog.ListTools(ctx)
	if err != nil {
		return err
	}
	conv := srv.Builder.Build(chat.BuildParams{
		Timezone:     chatTimezone,
		AllTools:     all,
		EnabledTools: all,
		History:      sess.History(),
		UserMessage:  input,
	})
	sess.Append(chat.Message{Role: chat.RoleUser, Content: input})

	fmt.Print(styles.Assistant.Render("parlo> "))
	es := srv.Loop.Stream(ctx, conv, all, func(msgs []chat.Message) {
		sess.Append(msgs...)
	})
	defer es.Close()

	for {
		evt, err := es.Next()
		if err != nil {
			fmt.Println()
			if chat.IsDone(err) {
				return nil
			}
			return err
		}
		switch evt.Type {
		case chat.EventTextDelta:
			fmt.Print(evt.Text)
		case chat.EventToolCall:
			fmt.Println()
			fmt.Println(styles.Tool.Render("⚙ " + evt.Name))
		case chat.EventToolResult:
			fmt.Println(styles.Dim.Render("  → " + truncate(evt.Result.Response, 120)))
		case chat.EventDone:
			if evt.Capped {
				fmt.Println()
				fmt.Println(styles.Error.Render("(turn hit the round cap)"))
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func init() {
	chatCmd.Flags().StringVar(&chatTimezone, "timezone", "", "IANA timezone for the conversation")
	rootCmd.AddCommand(chatCmd)
}

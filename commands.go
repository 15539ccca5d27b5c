package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"cmdai/config"
	"cmdai/model"
	"cmdai/provider"
	"cmdai/storage"
)

func newModelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the models of every configured provider",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.Root().Writer
			for _, id := range e.router.ListModels(ctx) {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}

func newAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a single prompt and print the reply",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model id, e.g. llama3 or openai/gpt-4o (default: last used model)"},
			&cli.BoolFlag{Name: "no-stream", Usage: "Wait for the complete reply instead of streaming it"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if prompt == "" {
				_ = cli.ShowSubcommandHelp(cmd)
				return cli.Exit("A prompt is required.", 1)
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			modelID := cmd.String("model")
			if modelID == "" {
				modelID = e.cfg.Model()
			}
			messages := []model.ChatMessage{{Role: model.RoleUser, Content: prompt}}
			out := cmd.Root().Writer

			if cmd.Bool("no-stream") {
				reply, err := e.router.Complete(ctx, modelID, messages)
				if err != nil {
					return cli.Exit(err.Error(), exitCode(err))
				}
				fmt.Fprintln(out, reply)
				return nil
			}

			for fragment, err := range e.router.Stream(ctx, modelID, messages) {
				if err != nil {
					fmt.Fprintln(out)
					return cli.Exit(err.Error(), exitCode(err))
				}
				fmt.Fprint(out, fragment)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

// exitCode maps a provider failure to the process status: 2 for missing
// credentials, 130 for an interrupted request, 1 otherwise.
func exitCode(err error) int {
	switch provider.KindOf(err) {
	case provider.FailureNotConfigured:
		return 2
	case provider.FailureCanceled:
		return 130
	default:
		return 1
	}
}

func newConversationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "conversations",
		Aliases: []string{"ls"},
		Usage:   "List saved conversations, newest first",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			conversations, err := store.List()
			if err != nil {
				return cli.Exit(fmt.Sprintf("Failed to list conversations: %v", err), 1)
			}

			if len(conversations) == 0 {
				fmt.Fprintf(cmd.Root().Writer, "No saved conversations in %s\n", store.Dir())
				return nil
			}

			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tMESSAGES\tMODEL\tTITLE")
			for _, conv := range conversations {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					conv.ID,
					conv.UpdatedAt.Local().Format(time.DateTime),
					len(conv.Messages),
					conv.Model,
					conv.Title)
			}
			return w.Flush()
		},
	}
}

func newSearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the messages of saved conversations",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "rebuild", Usage: "Rebuild the search index from the conversation files first"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if query == "" {
				_ = cli.ShowSubcommandHelp(cmd)
				return cli.Exit("A search query is required.", 1)
			}

			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			index, err := storage.OpenSearchIndex(cfg.SearchIndexPath())
			if err != nil {
				return cli.Exit(fmt.Sprintf("Failed to open search index: %v", err), 1)
			}
			defer index.Close()

			if cmd.Bool("rebuild") {
				store, err := openStore(cfg)
				if err != nil {
					return err
				}
				if err := index.Rebuild(ctx, store); err != nil {
					return cli.Exit(fmt.Sprintf("Failed to rebuild search index: %v", err), 1)
				}
			}

			matches, err := index.Search(ctx, query)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			out := cmd.Root().Writer
			if len(matches) == 0 {
				fmt.Fprintf(out, "No messages match %q\n", query)
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(out, "%s  %s (#%d, %s)\n    %s\n",
					m.ConversationID, m.Title, m.MessageIndex, m.Role,
					strings.ReplaceAll(m.Preview, "\n", " "))
			}
			return nil
		},
	}
}

func newExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a conversation to a JSON file",
		ArgsUsage: "<conversation id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default: downloads directory)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				_ = cli.ShowSubcommandHelp(cmd)
				return cli.Exit("A conversation id is required.", 1)
			}

			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			conv, err := store.Load(id)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if conv == nil {
				return cli.Exit(fmt.Sprintf("Conversation %s not found", id), 1)
			}

			path := cmd.String("out")
			if path == "" {
				path = storage.ExportPath(conv.Title, time.Now())
			}
			path = config.ExpandPath(path)

			if err := store.Export(id, path); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(cmd.Root().Writer, path)
			return nil
		},
	}
}

func newKeyCommand() *cli.Command {
	providers := strings.Join(config.CloudProviders, ", ")
	return &cli.Command{
		Name:  "key",
		Usage: "Manage API keys stored in the OS keyring",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store an API key (" + providers + ")",
				ArgsUsage: "<provider> [key]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().Get(0)
					if !config.ValidCredentialProvider(id) {
						return cli.Exit(fmt.Sprintf("Unknown provider %q (expected one of %s)", id, providers), 1)
					}

					key := cmd.Args().Get(1)
					if key == "" {
						fmt.Fprintf(cmd.Root().ErrWriter, "Enter %s API key: ", id)
						scanner := bufio.NewScanner(cmd.Root().Reader)
						if scanner.Scan() {
							key = strings.TrimSpace(scanner.Text())
						}
					}

					if err := config.SetStoredKey(id, key); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(cmd.Root().Writer, "Stored %s API key in the keyring\n", id)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a stored API key",
				ArgsUsage: "<provider>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if err := config.DeleteStoredKey(id); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(cmd.Root().Writer, "Removed %s API key from the keyring\n", id)
					return nil
				},
			},
		},
	}
}

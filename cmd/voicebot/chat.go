package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/antoniostano/voicebot/internal/app"
	"github.com/antoniostano/voicebot/internal/conversation"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/protocol"
)

// withApp builds the service for a one-shot command and releases it after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, built *app.BuildResult) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := built.Cleanup(cleanupCtx); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}()
	return fn(ctx, built)
}

func newChatCmd() *cobra.Command {
	var language, userID, customerID string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Answer one text message and print the reply as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, built *app.BuildResult) error {
				res, err := built.Orchestrator.HandleText(ctx, conversation.TextTurn{
					UserID:       userID,
					CustomerID:   customerID,
					Message:      strings.Join(args, " "),
					LanguageHint: language,
				})
				if err != nil {
					return err
				}
				scores := res.Sentiment
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(protocol.ChatResponse{
					Response:    res.Text,
					Language:    res.Language.String(),
					Intent:      res.Intent,
					Confidence:  res.Confidence,
					Suggestions: res.Suggestions,
					Sentiment:   &scores,
					TurnID:      res.TurnID,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language hint, e.g. hi-IN")
	cmd.Flags().StringVar(&userID, "user", "cli", "user id for conversation memory")
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id for the interaction log")
	return cmd
}

func newSayCmd() *cobra.Command {
	var language, output string
	var offline bool
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Synthesize speech to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, built *app.BuildResult) error {
				var preferOnline *bool
				if cmd.Flags().Changed("offline") {
					online := !offline
					preferOnline = &online
				}
				speech, err := built.Orchestrator.Speak(ctx, strings.Join(args, " "), language, "", preferOnline)
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = "speech" + speech.Format.Extension()
				}
				if err := os.WriteFile(path, speech.Audio, 0o644); err != nil {
					return errors.Wrap(err, "write audio")
				}
				log.Info().
					Str("path", path).
					Str("language", speech.Language.String()).
					Str("provider", speech.Provider).
					Int("bytes", len(speech.Audio)).
					Msg("speech written")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language, e.g. ta-IN; detected from the text when empty")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default speech.<ext>)")
	cmd.Flags().BoolVar(&offline, "offline", false, "prefer offline synthesis")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := lang.NewRegistry(cfg.DefaultLanguage, cfg.SupportedLanguages)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, info := range reg.Languages() {
				marker := ""
				if info.Tag == reg.Default() {
					marker = "(default)"
				}
				_, _ = tw.Write([]byte(info.Tag.String() + "\t" + info.Name + "\t" + info.Native + "\t" + marker + "\n"))
			}
			return tw.Flush()
		},
	}
}

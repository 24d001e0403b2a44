package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docchat/internal/extract"
	"docchat/internal/log"
	"docchat/internal/service"
	"docchat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [file|glob ...]",
	Short: "Chat with documents in the terminal",
	Long:  `The chat command ingests the given .pdf (and .txt/.md) files, then opens an interactive chat. Without arguments it continues with the persisted index, if any.`,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// chatPort adapts the conversation to the TUI, loading files by path.
type chatPort struct {
	*service.Conversation
	files *extract.Extractor
}

func (p chatPort) IngestPaths(ctx context.Context, patterns []string) (*service.IngestReport, error) {
	docs, err := p.files.LoadFiles(patterns)
	if err != nil {
		return nil, err
	}
	return p.Ingest(ctx, docs)
}

func runChat(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// log output would garble the terminal UI
	if cfg.Log.File == "" {
		log.SetLogger(logr.Discard())
	} else if err := log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv, restored, err := newConversation(ctx, cfg, log.WithName("docchat"))
	if err != nil {
		return err
	}
	port := chatPort{Conversation: conv, files: extract.New(true)}

	summary := "No documents loaded. Use /ingest <files> to add some."
	if restored {
		summary = "Continuing with the saved index."
	}
	if len(args) > 0 {
		report, err := ingestWithProgress(ctx, port, args)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		summary = report.Summary
		if summary == "" {
			summary = fmt.Sprintf("Indexed %d passage(s).", report.Passages)
		}
	}

	m := tui.New(ctx, port, summary)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}

func ingestWithProgress(ctx context.Context, port chatPort, patterns []string) (*service.IngestReport, error) {
	docs, err := port.files.LoadFiles(patterns)
	if err != nil {
		return nil, err
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("embedding passages"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	report, err := port.IngestWithProgress(ctx, docs, func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	return report, err
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docrag/internal/ingest"
	"docrag/internal/parser"
	"docrag/internal/server"
	"docrag/internal/service"
	"docrag/internal/tui"
	"docrag/internal/watch"
)

var (
	plainProgress bool
	showDocuments bool
)

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Parse, chunk, embed and index files or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		paths, err := parser.Collect(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no supported files found")
		}
		files := make([]service.FileInput, len(paths))
		for i, p := range paths {
			files[i] = service.FileInput{Path: p}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var report *service.Report
		if plainProgress {
			report, err = a.pipeline.IndexFiles(ctx, files)
		} else {
			report, err = indexWithProgress(ctx, a.pipeline, files)
		}
		if report != nil {
			printReport(report)
		}
		return err
	},
}

// indexWithProgress runs the indexing while a progress view polls the tracker.
func indexWithProgress(ctx context.Context, p *service.Pipeline, files []service.FileInput) (*service.Report, error) {
	restore := logToFile()
	defer restore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(tui.NewProgress(p.Tracker(), 100*time.Millisecond))
	var (
		report *service.Report
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		report, runErr = p.IndexFiles(ctx, files)
		prog.Send(tui.RunDoneMsg{})
	}()
	_, viewErr := prog.Run()
	// Quitting the view early abandons the run.
	cancel()
	<-done
	if viewErr != nil && runErr == nil {
		return report, viewErr
	}
	return report, runErr
}

func printReport(r *service.Report) {
	for _, f := range r.Files {
		if f.Error != "" {
			fmt.Printf("  ✗ %s: %s\n", f.Filename, f.Error)
			continue
		}
		fmt.Printf("  ✓ %s (%s, %d chunks)\n", f.Filename, f.Kind, f.Chunks)
	}
	fmt.Printf("Indexed %d chunks, %d vectors total\n", r.IndexedChunks, r.TotalVectors)
	if r.Summary != "" {
		fmt.Printf("\nSummary:\n%s\n", r.Summary)
	}
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the chunks nearest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		results, err := a.pipeline.Search(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%d. %s #%d  distance=%.4f\n%s\n\n", i+1, r.Entry.Filename, r.Entry.ChunkIndex, r.Distance, r.Entry.Text)
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ans, err := a.pipeline.Ask(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		fmt.Println(ans.Answer)
		if len(ans.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, s := range ans.Sources {
				fmt.Printf("  %s #%d (%.4f)\n", s.Filename, s.ChunkIndex, s.Distance)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if showDocuments {
			return enc.Encode(map[string]interface{}{
				"stats":     a.pipeline.Stats(),
				"documents": a.pipeline.Documents(),
			})
		}
		return enc.Encode(a.pipeline.Stats())
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every vector from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.pipeline.Clear(); err != nil {
			return err
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive search and question answering",
	Long: `Launch a terminal UI over the persisted index.

Key bindings:
  Enter      Run query
  Tab        Toggle search / ask
  Up/Down    Cycle results
  PgUp/PgDn  Scroll
  Esc        Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		restore := logToFile()
		defer restore()

		st := a.pipeline.Stats()
		summary := fmt.Sprintf("%d chunks from %d documents", st.TotalChunks, st.TotalDocuments)
		_, err = tea.NewProgram(tui.New(a.pipeline, a.cfg.Query.TopK, summary), tea.WithAltScreen()).Run()
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, optionally indexing files dropped into watch.dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue := ingest.NewQueue(a.pipeline, 16)
		queue.Start()
		defer queue.Stop()

		if dir := a.cfg.Watch.Dir; dir != "" {
			w, err := watch.New(dir, time.Duration(a.cfg.Watch.DebounceMS)*time.Millisecond, parser.Allowed,
				func(paths []string) {
					files := make([]service.FileInput, len(paths))
					for i, p := range paths {
						files[i] = service.FileInput{Path: p}
					}
					id, err := queue.Submit(files)
					if err != nil {
						log.Printf("watch: failed to queue %d files: %v", len(files), err)
						return
					}
					log.Printf("watch: queued %d files as job %s", len(files), id)
				})
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
		}

		return server.New(a.pipeline, queue, a.cfg.Server).ListenAndServe(ctx)
	},
}

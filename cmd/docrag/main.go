package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	topK    int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Index documents and answer questions from them",
	Long: `docrag splits PDF, DOCX, text and source files into overlapping chunks,
embeds them and keeps a persistent nearest-neighbour index. The index can be
searched, used to answer questions with a language model, or served over HTTP.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
	},
}

func init() {
	// .env is optional
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file (defaults to ~/.config/docrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	searchCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (defaults to query.top_k)")
	askCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of context chunks (defaults to query.top_k)")
	statsCmd.Flags().BoolVar(&showDocuments, "documents", false, "also list indexed documents with chunk counts")
	indexCmd.Flags().BoolVar(&plainProgress, "plain", false, "print log lines instead of the progress view")

	rootCmd.AddCommand(indexCmd, searchCmd, askCmd, serveCmd, tuiCmd, statsCmd, clearCmd)
}

// logToFile sends log output to a file while a full-screen view owns the
// terminal. The returned func restores stderr.
func logToFile() func() {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "docrag")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("cannot create log directory: %v", err)
		return func() {}
	}
	path := filepath.Join(dir, "docrag.log")
	f, err := tea.LogToFile(path, "docrag")
	if err != nil {
		log.Printf("cannot open log file: %v", err)
		return func() {}
	}
	return func() {
		log.SetOutput(os.Stderr)
		log.SetPrefix("")
		f.Close()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

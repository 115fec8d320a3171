package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Ingest PDFs, extract structured metadata with an LLM, and index them for semantic search",
	Long: `docpipe hashes incoming PDF files, skips ones it has already seen,
uploads the rest to an LLM provider for structured metadata extraction,
persists the result in a relational store, and registers the file with a
vector store for semantic search. If extraction, costing or persistence
fails after the upload, the uploaded file is deleted again.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "docpipe.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

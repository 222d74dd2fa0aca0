package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/rgssad/internal/archive"
)

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Extract every file of an archive",
	RunE:  unpack,
}

func init() {
	unpackCmd.Flags().IntP("parallel", "p", 1, "number of rgss3a extraction workers")
	viper.BindPFlag("parallel", unpackCmd.Flags().Lookup("parallel"))

	rootCmd.AddCommand(unpackCmd)
}

// unpack extracts the input archive into the output directory, which
// defaults to a directory named after the archive
func unpack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	outDir := cfg.OutputFile
	if outDir == "" {
		outDir = strings.TrimSuffix(cfg.InputFile, filepath.Ext(cfg.InputFile))
	}

	slog.Info("unpacking archive", "input", cfg.InputFile, "output", outDir)

	a, err := archive.Unpack(cmd.Context(), afero.NewOsFs(), cfg.InputFile, outDir, archive.UnpackOptions{
		Parallel:  cfg.Parallel,
		Overwrite: cfg.Overwrite,
		DryRun:    cfg.DryRun,
		Match:     cfg.Match,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("error unpacking %s: %w", cfg.InputFile, err)
	}

	slog.Info("done", "entries", len(a.Entries), "format", a.Format)
	return nil
}

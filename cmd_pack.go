package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/rgssad/internal/archive"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Create an archive from a directory",
	RunE:  pack,
}

func init() {
	packCmd.Flags().Int("archive-version", 0, "archive version to write, 1 (rgssad/rgss2a) or 3 (rgss3a); guessed from the output extension if unset")
	packCmd.Flags().String("key", fmt.Sprintf("%#x", archive.DefaultKey3), "rgss3a archive key")
	viper.BindPFlag("archive_version", packCmd.Flags().Lookup("archive-version"))
	viper.BindPFlag("key", packCmd.Flags().Lookup("key"))

	rootCmd.AddCommand(packCmd)
}

// pack builds an archive from the input directory
func pack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.OutputFile == "" {
		return fmt.Errorf("no output archive given, set --output or RGSSAD_OUTPUT")
	}

	format := rgsstypes.FormatFromVersion(byte(cfg.ArchiveVersion))
	if cfg.ArchiveVersion == 0 {
		format = rgsstypes.FormatFromPath(cfg.OutputFile)
	}
	if format == rgsstypes.FormatUnknown {
		return fmt.Errorf("cannot tell the archive version of %s, set --archive-version", filepath.Base(cfg.OutputFile))
	}

	key, err := parseKey(cfg.Key)
	if err != nil {
		return err
	}

	slog.Info("packing directory", "input", cfg.InputFile, "output", cfg.OutputFile, "format", format)

	a, err := archive.Pack(cmd.Context(), afero.NewOsFs(), cfg.InputFile, cfg.OutputFile, archive.PackOptions{
		Format:    format,
		Key:       key,
		Overwrite: cfg.Overwrite,
		DryRun:    cfg.DryRun,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("error packing %s: %w", cfg.InputFile, err)
	}

	slog.Info("done", "entries", len(a.Entries))
	return nil
}

func parseKey(s string) (uint32, error) {
	if s == "" {
		return archive.DefaultKey3, nil
	}
	key, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return uint32(key), nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/rgssad/internal/archive"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files of an archive",
	RunE:  list,
}

func init() {
	listCmd.Flags().Bool("json", false, "print the listing as JSON")
	viper.BindPFlag("json", listCmd.Flags().Lookup("json"))

	rootCmd.AddCommand(listCmd)
}

// list prints the entry table of the input archive
func list(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := archive.List(afero.NewOsFs(), cfg.InputFile, nil)
	if err != nil {
		return fmt.Errorf("error listing %s: %w", cfg.InputFile, err)
	}
	a.Entries, err = archive.Select(a.Entries, func(e rgsstypes.Entry) string { return e.Name }, cfg.Match)
	if err != nil {
		return err
	}

	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	return printListing(os.Stdout, a)
}

func printListing(w io.Writer, a *rgsstypes.Archive) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	if a.Format == rgsstypes.FormatV3 {
		fmt.Fprintf(tw, "OFFSET\tSIZE\tKEY\t NAME\n")
		for _, e := range a.Entries {
			fmt.Fprintf(tw, "%d\t%d\t%08x\t %s\n", e.Offset, e.Size, e.Key, e.Name)
		}
	} else {
		fmt.Fprintf(tw, "SIZE\t NAME\n")
		for _, e := range a.Entries {
			fmt.Fprintf(tw, "%d\t %s\n", e.Size, e.Name)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total := lo.SumBy(a.Entries, func(e rgsstypes.Entry) uint64 { return uint64(e.Size) })
	_, err := fmt.Fprintf(w, "%d files, %d bytes (%s)\n", len(a.Entries), total, a.Format)
	return err
}

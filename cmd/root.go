// Package cmd provides the geoextent command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/btraven00/geoextent/internal/config"
	"github.com/btraven00/geoextent/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd is geoextent's single positional-argument entry point: unlike
// the teacher's multi-verb tool, geoextent has one job (extract a
// bbox/tbox from a path or identifier), so the root command itself runs
// extraction rather than delegating to a subcommand.
var rootCmd = &cobra.Command{
	Use:   "geoextent [path-or-identifier]",
	Short: "Extract geospatial and temporal extents from files, directories, archives, or remote repositories",
	Long: `geoextent determines the geospatial (WGS84 bounding box) and temporal
(start/end date) extent of a local file, a directory tree, an archive,
or a remote identifier (DOI, repository URL, SPARQL-queryable knowledge
base entry, or STAC catalog URL).`,
	Args:    cobra.ExactArgs(1),
	RunE:    runExtent,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.geoextent.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose debug logging to stderr")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress all but warning/error logging")

	registerExtentFlags(rootCmd)

	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(providersCmd)
}

// initConfig loads the merged config (defaults < file < env < flags)
// spec.md §6 and internal/config.Load describe, then configures the
// logger from its Debug/Quiet fields before any command runs.
func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "geoextent: config error:", err)
		os.Exit(2)
	}
	cfg = loaded

	if debug, _ := rootCmd.PersistentFlags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if quiet, _ := rootCmd.PersistentFlags().GetBool("quiet"); quiet {
		cfg.Quiet = true
	}

	logging.Configure(cfg.Debug, cfg.Quiet, os.Stderr)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/btraven00/geoextent/pkg/handlers"
)

var formatsJSON bool

// formatsCmd implements spec.md §6's --formats diagnostic as a
// subcommand rather than a root flag, matching the teacher's listCmd
// shape (cmd/domains.go): a separate verb that prints a listing and
// exits, rather than a boolean that would have to short-circuit
// runExtent's positional-argument requirement.
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the local file formats geoextent can read",
	RunE:  runFormats,
}

func runFormats(_ *cobra.Command, _ []string) error {
	hs := handlers.Ordered()

	if formatsJSON {
		names := make([]string, 0, len(hs))
		for _, h := range hs {
			names = append(names, h.Name())
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Handlers []string `json:"handlers"`
		}{Handlers: names})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLER\tCONVEX HULL")
	fmt.Fprintln(w, "-------\t-----------")
	for _, h := range hs {
		_, hull := h.(handlers.HullCapable)
		fmt.Fprintf(w, "%s\t%v\n", h.Name(), hull)
	}
	return w.Flush()
}

func init() {
	formatsCmd.Flags().BoolVar(&formatsJSON, "json", false, "output as JSON")
}

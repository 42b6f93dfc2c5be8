package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/btraven00/geoextent/pkg/providers"
)

var providersJSON bool

// providersCmd implements spec.md §6's --providers diagnostic: list the
// registered remote providers in dispatch order (spec.md §4.4's "same
// identifier + same registration order ⇒ same provider, always" makes
// that order part of the public contract, worth printing).
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the remote repository providers geoextent can dispatch to",
	RunE:  runProviders,
}

func runProviders(_ *cobra.Command, _ []string) error {
	ps := providers.NewRegistry().Providers()

	if providersJSON {
		infos := make([]providers.Info, 0, len(ps))
		for _, p := range ps {
			infos = append(infos, p.Info())
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Providers []providers.Info `json:"providers"`
		}{Providers: infos})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tWEBSITE\tDOI PREFIXES")
	fmt.Fprintln(w, "--------\t-------\t------------")
	for _, p := range ps {
		info := p.Info()
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.Website, strings.Join(info.DOIPrefixes, ", "))
	}
	return w.Flush()
}

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "output as JSON")
}

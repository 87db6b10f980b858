package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adityalohuni/formaudit/internal/audit/audits"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available audits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metas := audits.Default().List()
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(metas)
			}
			out := cmd.OutOrStdout()
			for _, m := range metas {
				names := make([]string, 0, len(m.RequiredArtifacts))
				for _, n := range m.RequiredArtifacts {
					names = append(names, string(n))
				}
				fmt.Fprintf(out, "%-12s %s [%s]\n", m.ID, i18n.Format(m.Title), strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output descriptors as JSON")
	return cmd
}

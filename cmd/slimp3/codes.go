package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmullan/gslimp3/internal/protocol"
)

type remoteCodeRow struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func remoteCodeRows() []remoteCodeRow {
	names := protocol.RemoteCodeNames()
	rows := make([]remoteCodeRow, 0, len(names))
	for _, name := range names {
		code, _ := protocol.RemoteCode(name)
		rows = append(rows, remoteCodeRow{Name: name, Code: fmt.Sprintf("0x%08x", code)})
	}
	return rows
}

func newCodesCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "codes",
		Short: "List the remote control buttons and their infrared codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := remoteCodeRows()
			out := cmd.OutOrStdout()

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			cells := make([][]string, 0, len(rows))
			for _, r := range rows {
				cells = append(cells, []string{r.Name, r.Code})
			}
			fmt.Fprintln(out, renderTable([]string{"Button", "Code"}, cells, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

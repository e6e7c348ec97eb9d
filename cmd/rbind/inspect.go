package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"residualbind/internal/storage"
)

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [container]",
		Short: "list the arrays stored in a dataset container",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.settings.DatasetPath
			if len(args) == 1 {
				path = args[0]
			}
			store, err := storage.New(path)
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.Arrays()
			if err != nil {
				return err
			}
			fmt.Printf("Inspecting %s\n\n", path)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "name\tshape\tsize")
			for _, name := range names {
				shape, data, err := store.GetArray(name)
				if err != nil {
					// string arrays have no numeric payload
					if values, serr := store.GetStrings(name); serr == nil {
						fmt.Fprintf(tw, "%s\t[%d]\t%d strings\n", name, len(values), len(values))
						continue
					}
					return err
				}
				fmt.Fprintf(tw, "%s\t%v\t%s\n", name, shape, humanize.Bytes(uint64(4*len(data))))
			}
			return tw.Flush()
		},
	}
}

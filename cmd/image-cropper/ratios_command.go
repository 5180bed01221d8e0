package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-cropper/pkg/cropper"
)

func newRatiosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ratios",
		Short: "List the selectable aspect ratios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, r := range cropper.CommonAspectRatios() {
				fmt.Fprintf(out, "%-12s %s\n", r.Name, r.String())
			}
			return nil
		},
	}
}

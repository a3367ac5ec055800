package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/session"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Print the render plan of a JSON or YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := schema.LoadDocument(args[0])
			if err != nil {
				return err
			}
			plan := session.RenderDocument(doc, opts.logger(cmd))

			var out []byte
			if compact {
				out, err = json.Marshal(plan)
			} else {
				out, err = json.MarshalIndent(plan, "", "  ")
			}
			if err != nil {
				return fmt.Errorf("encode plan: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print the plan on one line")
	return cmd
}

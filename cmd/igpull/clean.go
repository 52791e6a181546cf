package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"igpull/pkg/metadata"
)

func newCleanCmd(g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "clean <username> [usernames...]",
		Short: "Remove metadata sidecars whose media files were deleted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usernames, err := parseUsernames(args)
			if err != nil {
				return err
			}
			cfg, _, console, err := g.setup(cmd, map[string]interface{}{"output": output})
			if err != nil {
				return err
			}

			for _, username := range usernames {
				removed, err := metadata.CleanOrphaned(filepath.Join(cfg.Output.BaseDirectory, username))
				if err != nil {
					return fmt.Errorf("%s: %w", username, err)
				}
				console.Info(username, fmt.Sprintf("%d orphaned sidecars removed", removed))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "base directory the profiles were downloaded to")
	return cmd
}

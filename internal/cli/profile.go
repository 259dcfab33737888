package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aiddflow/internal/profile"
	"aiddflow/internal/skills"
)

// newProfileCommand shows the resolved host dialect and the skill packs
// installed under its search paths.
func (a *App) newProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the resolved host dialect and installed skill packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := profile.Resolve(a.profileFlag, "")
			a.renderProfile(p)

			packs, err := skills.Discover(profile.SkillsSearchPaths(p))
			if err != nil {
				return err
			}
			if len(packs) == 0 {
				fmt.Fprintln(a.Out, "no skill packs installed")
				return nil
			}
			for _, pack := range packs {
				fmt.Fprintf(a.Out, "  %-20s %-10s %s\n", pack.Name, pack.Version,
					styleDim.Render(pack.Dir))
			}
			return nil
		},
	}
}

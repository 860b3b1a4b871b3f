package main

import (
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <label>",
	Short: "Resolve a label to its canonical form and package",
	Long: `Resolve a label as written in the main repository, e.g. //lib:util,
@dep//:dep or @@dep+1.0//lib. Dependencies are resolved as needed and the
package's BUILD file is located and digested.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return outputError(cmd, "query", err)
		}
		defer s.Close()

		ctx := cmd.Context()
		ws, err := s.openWorkspace(ctx)
		if err != nil {
			return outputError(cmd, "query", err)
		}
		target, err := ws.Lookup(ctx, args[0])
		if err != nil {
			return outputError(cmd, "query", err)
		}
		digest, err := target.Package.Digest(ctx)
		if err != nil {
			return outputError(cmd, "query", err)
		}

		return outputResult(cmd, CLIResult{
			Command: "query",
			Results: CLITarget{
				Label:      target.Label.String(),
				Repository: target.Label.Repo.Name(),
				Package:    target.Package.Path(),
				BuildFile:  target.Package.BuildFile().Path(),
				Digest:     digest.String(),
			},
		})
	},
}

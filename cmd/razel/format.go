package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// displayRepo renders a canonical repository name the way labels spell it.
func displayRepo(name string) string {
	return "@@" + name
}

// formatMappingText prints one "apparent -> canonical" line per entry,
// sorted by apparent name.
func formatMappingText(w io.Writer, m CLIRepoMapping) {
	fmt.Fprintf(w, "%s:\n", displayRepo(m.Repository))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, apparent := range sortedKeys(m.Mapping) {
		shown := apparent
		if shown == "" {
			shown = `""`
		}
		fmt.Fprintf(tw, "  %s\t->\t%s\n", shown, displayRepo(m.Mapping[apparent]))
	}
	tw.Flush()
}

// formatGraphText prints the dependency graph as aligned columns.
func formatGraphText(w io.Writer, nodes []CLIGraphNode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tSTATE\tDEPS")
	for _, n := range nodes {
		var deps []string
		for _, apparent := range sortedKeys(n.Deps) {
			deps = append(deps, displayRepo(n.Deps[apparent]))
		}
		detail := strings.Join(deps, " ")
		if n.Error != "" {
			detail = n.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", displayRepo(n.Repository), n.State, detail)
	}
	tw.Flush()
}

// formatTargetText formats a CLITarget as readable text.
func formatTargetText(w io.Writer, t CLITarget) {
	fmt.Fprintf(w, "Label: %s\n", t.Label)
	fmt.Fprintf(w, "Repository: %s\n", displayRepo(t.Repository))
	fmt.Fprintf(w, "Package: %s\n", t.Package)
	fmt.Fprintf(w, "Build file: %s\n", t.BuildFile)
	fmt.Fprintf(w, "Digest: %s\n", t.Digest)
}

// formatRepositoryText formats a CLIRepository as readable text.
func formatRepositoryText(w io.Writer, r CLIRepository) {
	fmt.Fprintf(w, "Repository: %s\n", displayRepo(r.Repository))
	if r.Module != "" {
		fmt.Fprintf(w, "Module: %s %s\n", r.Module, r.Version)
	}
	fmt.Fprintf(w, "State: %s\n", r.State)
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	if r.ModuleDigest != "" {
		fmt.Fprintf(w, "Digest: %s\n", r.ModuleDigest)
	}
	fmt.Fprintf(w, "Resolved: %s\n", r.ResolvedAt)
	fmt.Fprintln(w)

	if len(r.Mapping) > 0 {
		formatMappingText(w, CLIRepoMapping{Repository: r.Repository, Mapping: r.Mapping})
		fmt.Fprintln(w)
	}

	if len(r.Dependents) > 0 {
		fmt.Fprintln(w, "Dependents:")
		for _, dep := range r.Dependents {
			fmt.Fprintf(w, "  %s\n", displayRepo(dep))
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIVersion:
		fmt.Fprintf(w, "razel %s\n", v.Version)
	case CLITarget:
		formatTargetText(w, v)
	case []CLIRepoMapping:
		for i, m := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			formatMappingText(w, m)
		}
	case []CLIGraphNode:
		formatGraphText(w, v)
	case CLIRepository:
		formatRepositoryText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", result.Error)
	}
	return nil
}

// outputResult writes result to the command's stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	if slices.Contains(validFormats, format) {
		return nil
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

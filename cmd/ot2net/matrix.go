package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ness-ot/ot2net/internal/rbac"
)

func matrixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Inspect the permission matrix",
	}
	cmd.AddCommand(matrixCheckCmd(), matrixShowCmd())
	return cmd
}

func matrixCheckCmd() *cobra.Command {
	var extra []string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fail if any known role has no matrix entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles := rbac.Roles()
			for _, name := range extra {
				roles = append(roles, rbac.Role(name))
			}
			if err := rbac.DefaultMatrix().Validate(roles...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "permission matrix ok: %d roles\n", len(roles))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&extra, "role", nil, "additional role names to check (e.g. roles stored in usuarios)")
	return cmd
}

func matrixShowCmd() *cobra.Command {
	var (
		only   string
		locale string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the grants of each role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			labels, err := rbac.NewLabels(locale)
			if err != nil {
				return err
			}
			m := rbac.DefaultMatrix()

			roles := m.Roles()
			if only != "" {
				roles = []rbac.Role{rbac.Role(only)}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tGRANT\tLABEL")
			for _, role := range roles {
				if !m.Has(role) {
					return fmt.Errorf("%w: role %q has no matrix entry", rbac.ErrConfigurationDefect, role)
				}
				for _, g := range m.Grants(role) {
					fmt.Fprintf(tw, "%s\t%s\t%s %s\n", role, g, labels.Action(g.Action), labels.Resource(g.Resource))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&only, "role", "", "show a single role")
	cmd.Flags().StringVar(&locale, "locale", "pt-BR", "label locale (pt-BR or en)")
	return cmd
}

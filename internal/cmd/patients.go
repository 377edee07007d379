package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/ux"
)

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "Browse enrolled patients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var patientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patients visible to you",
	Long: `List patients enrolled by your institute.

Requires an approved session; gated institute admins get exit code 4.

Examples:
  ckdreg patients list
  ckdreg patients list --status active --search "PT-00"
  ckdreg patients list --output json`,
	RunE: runPatientsList,
}

func init() {
	patientsListCmd.Flags().StringP("output", "o", "text", "output format: text, json, yaml")
	patientsListCmd.Flags().String("search", "", "filter by name or registry number")
	patientsListCmd.Flags().String("status", "", "filter by status: active, transferred, exited, deceased")
	patientsListCmd.Flags().Int("limit", 50, "maximum number of patients")
	patientsListCmd.Flags().Int("offset", 0, "number of patients to skip")

	patientsCmd.AddCommand(patientsListCmd)
	rootCmd.AddCommand(patientsCmd)
}

func runPatientsList(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	output, _ := flags.GetString("output")
	search, _ := flags.GetString("search")
	statusName, _ := flags.GetString("status")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")

	filter := registry.PatientFilter{Search: search, Limit: limit, Offset: offset}
	if statusName != "" {
		st, err := registry.ParsePatientStatus(strings.ToUpper(statusName))
		if err != nil {
			return ux.FormatError(err, "invalid flag --status")
		}
		filter.Status = st
	}

	formatter, err := ux.NewFormatter(output, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return ux.FormatError(err, "")
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	return listPatients(cmd.Context(), a, filter, formatter)
}

func listPatients(ctx context.Context, a *app, filter registry.PatientFilter, formatter ux.Formatter) error {
	if _, err := requireAccess(a); err != nil {
		return err
	}

	page, err := a.api.Patients(ctx, filter)
	if err != nil {
		return ux.FormatError(err, "listing patients")
	}
	return formatter.Format(ux.PatientList{Page: page})
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pytake/flowbroker/internal/flow"
	"github.com/pytake/flowbroker/internal/flowerrors"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Validate flow definitions",
}

func init() {
	flowsCmd.AddCommand(flowsValidateCmd)
}

var flowsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse and validate a flow JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			if os.IsPermission(err) {
				return permissionDenied(err)
			}
			if os.IsNotExist(err) {
				return notFound(err)
			}
			return err
		}

		f, err := flow.ParseJSON(data)
		if err != nil {
			return validationFailed(flowerrors.Wrap(flowerrors.KindInput, "parse flow document", err))
		}

		report := f.Validate()
		printHeader(fmt.Sprintf("Flow %s (%s)", f.ID, f.Name))
		fmt.Printf("performance score: %d/100\n", report.PerformanceScore)
		for _, w := range report.Warnings {
			printWarn("warning: %s", w)
		}
		for _, e := range report.Errors {
			printErr("error: %s", e)
		}
		if !report.IsValid {
			return validationFailed(flowerrors.New(flowerrors.KindInput, "flow failed validation"))
		}
		printOK("flow is valid")
		return nil
	},
}

package cli

import (
	"fmt"
	"sort"

	"github.com/dynamatics/dynamatics/pkg/dataflow"

	"github.com/spf13/cobra"
)

func NewDatasetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the built-in example datasets",
		Long:  `List the embedded datasets a datasource node can reference by name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasets()
		},
	}

	return cmd
}

func runDatasets() error {
	fixtures := dataflow.NewFixtureStore()

	names := fixtures.Names()
	sort.Strings(names)

	for _, name := range names {
		rows, _ := fixtures.Rows(name)
		schema, _ := fixtures.Schema(name)

		columns := make([]string, 0, len(schema))
		for column := range schema {
			columns = append(columns, column)
		}
		sort.Strings(columns)

		fmt.Printf("%s (%d rows)\n", name, len(rows))
		for _, column := range columns {
			fmt.Printf("  %s: %s\n", column, schema[column])
		}
	}

	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dwh/internal/config"
	"dwh/internal/warehouse"
)

const validateCmdName = "validate"

func newLoadDimensionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load-dimensions",
		Short: "Reload the Products, Customers and Dates dimensions",
		Long: `Reload the Products, Customers and Dates dimensions.

InternetSales references every dimension, so it is emptied first. Run
load-facts afterwards to repopulate it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := a.runner.LoadDimensions(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			a.logger.Info().
				Int64("products", rep.Products).
				Int64("customers", rep.Customers).
				Int64("dates", rep.Dates).
				Msg("dimensions loaded")
			return nil
		},
	}
}

func newLoadFactsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load-facts",
		Short: "Reload InternetSales against the current dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := a.runner.LoadFacts(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			warehouse.Summary{Job: a.cfg.Job, Facts: rep}.Log(a.logger)
			return nil
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load dimensions, then facts, and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := a.runner.Run(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			sum.Log(a.logger)
			fmt.Fprintln(cmd.OutOrStdout(), sum.Line())
			return nil
		},
	}
}

func newWaitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Wait until the source and the warehouse accept connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.runner.Wait(cmd.Context(), a.cfg); err != nil {
				return err
			}
			a.logger.Info().Msg("source and warehouse ready")
			return nil
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create missing star schema tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.runner.EnsureSchema(cmd.Context(), a.cfg); err != nil {
				return err
			}
			counts, err := a.runner.TableCounts(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			for _, c := range counts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", c.Table, c.Rows)
			}
			return nil
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   validateCmdName,
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues := config.Validate(a.cfg)
			for _, iss := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return invalidConfig(issues)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	}
}

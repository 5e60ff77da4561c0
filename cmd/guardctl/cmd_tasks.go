package main

import (
	"github.com/spf13/cobra"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

func newRunCmd(root *rootFlags) *cobra.Command {
	var agents int
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run the agents on a prompt, then store and analyze their reasoning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			report, err := app.Orchestrator.CreateAndRun(cmd.Context(), args[0], agents)
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), root.format, report)
		},
	}
	cmd.Flags().IntVarP(&agents, "agents", "n", 0, "Number of agents (default from config)")
	return cmd
}

func newTasksCmd(root *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"history"},
		Short:   "List the most recent tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			tasks, err := app.Orchestrator.ListTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderTasks(cmd.OutOrStdout(), root.format, tasks)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of tasks")
	return cmd
}

func newShowCmd(root *rootFlags) *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a stored task with its families and verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			if resume {
				report, err := app.Orchestrator.Resume(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderReport(cmd.OutOrStdout(), root.format, report)
			}
			report, err := app.Orchestrator.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), root.format, report)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Finish or re-analyze the task before showing it")
	return cmd
}

func newOverrideCmd(root *rootFlags) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "override <task-id>",
		Short: "Force a blocked task to ALLOW",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			task, err := app.Orchestrator.Override(cmd.Context(), args[0], confirm)
			if err != nil {
				return err
			}
			return renderTasks(cmd.OutOrStdout(), root.format, []*models.Task{task})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "Why the block is being overridden (required)")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}

func newPatternsCmd(root *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List prompts that keep producing fragile reasoning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			patterns, err := app.Orchestrator.FragilePatterns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderPatterns(cmd.OutOrStdout(), root.format, patterns)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of patterns")
	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ollaforge/forgecli/api"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage fine-tuning projects",
}

var (
	projectDescFlag   string
	projectModelFlag  string
	projectTargetFlag string
	projectForceFlag  bool
)

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		projects, err := client.ListProjects(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list projects: %s", api.Code(err))
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Create one with 'forgecli projects create'.")
			return nil
		}
		fmt.Printf("%-24s %-24s %-20s %s\n", "SLUG", "NAME", "MODEL", "TARGET")
		for _, p := range projects {
			fmt.Printf("%-24s %-24s %-20s %s\n", p.Slug, p.Name, orDash(p.Model), orDash(p.TargetName))
		}
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.CreateProject(cmd.Context(), api.CreateProjectRequest{
			Name:        args[0],
			Description: projectDescFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create project: %s", api.Code(err))
		}
		fmt.Printf("Created project %s (slug: %s)\n", resp.Name, resp.Slug)
		return nil
	},
}

var projectsUpdateCmd = &cobra.Command{
	Use:   "update <project-slug> <name>",
	Short: "Update a project's name, description, model or target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.UpdateProject(cmd.Context(), args[0], api.UpdateProjectRequest{
			Name:        args[1],
			Description: projectDescFlag,
			Model:       projectModelFlag,
			TargetName:  projectTargetFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to update project: %s", api.Code(err))
		}
		fmt.Printf("Updated project %s\n", resp.Slug)
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <project-slug>",
	Short: "Delete a project and all of its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !projectForceFlag {
			return fmt.Errorf("deleting removes the project and its data files; re-run with --force to confirm")
		}
		client, _, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.DeleteProject(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete project: %s", api.Code(err))
		}
		fmt.Printf("Deleted project %s\n", args[0])
		return nil
	},
}

func init() {
	projectsCreateCmd.Flags().StringVar(&projectDescFlag, "description", "", "Project description")
	projectsUpdateCmd.Flags().StringVar(&projectDescFlag, "description", "", "Project description")
	projectsUpdateCmd.Flags().StringVar(&projectModelFlag, "model", "", "Base model for training")
	projectsUpdateCmd.Flags().StringVar(&projectTargetFlag, "target", "", "Name for the exported model")
	projectsDeleteCmd.Flags().BoolVar(&projectForceFlag, "force", false, "Skip the confirmation guard")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsUpdateCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
}

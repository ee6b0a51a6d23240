package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/service"
)

var (
	categoryIcon  string
	categoryColor string
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

func init() {
	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryCreateCmd)
	categoryCmd.AddCommand(categoryRenameCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)

	categoryCreateCmd.Flags().StringVar(&categoryIcon, "icon", "", "icon")
	categoryCreateCmd.Flags().StringVar(&categoryColor, "color", "", "color")
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories in the working copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		categories := app.LocalCache.Categories()
		if jsonOutput {
			return printJSON(categories)
		}
		for _, c := range categories {
			printCategory(c)
		}
		fmt.Printf("%d categories\n", len(categories))
		return nil
	},
}

var categoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := app.Coordinator.CreateCategory(cmd.Context(), model.CategoryInput{
			Name:  args[0],
			Icon:  categoryIcon,
			Color: categoryColor,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(category)
		}
		printCategory(*category)
		return nil
	},
}

var categoryRenameCmd = &cobra.Command{
	Use:   "rename <id> <new-name>",
	Short: "Rename a category and every book that uses it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		change, err := app.Coordinator.RenameCategory(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printChange("renamed", change)
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a category and remove it from every book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		change, err := app.Coordinator.DeleteCategory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printChange("deleted", change)
	},
}

func printChange(verb string, change *service.CategoryChange) error {
	if jsonOutput {
		return printJSON(change)
	}
	fmt.Printf("%s %q: %d books updated, %d failed\n",
		verb, change.Category.Name, change.BooksUpdated, change.BooksFailed)
	return nil
}

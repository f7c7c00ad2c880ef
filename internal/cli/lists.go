package cli

import (
	"fmt"
	"strconv"

	"listsync/internal/models"
	"listsync/internal/syncagent"

	"github.com/spf13/cobra"
)

var (
	output      string
	description string
	expiresIn   string
	newPassword string
	itemColor   string
	undo        bool
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new list",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCreate,
}

var showCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Print a list once",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var addCmd = &cobra.Command{
	Use:   "add <slug> <text>",
	Short: "Add an item to the top of a list",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdd,
}

var checkCmd = &cobra.Command{
	Use:   "check <slug> <item-id>",
	Short: "Mark an item done (or not done with --undo)",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheck,
}

func init() {
	for _, c := range []*cobra.Command{createCmd, showCmd, watchCmd} {
		c.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	}

	createCmd.Flags().StringVar(&description, "description", "", "List description")
	createCmd.Flags().StringVar(&expiresIn, "expires", "inf", "Lifetime: 1d, 1w, 1m or inf")
	createCmd.Flags().StringVar(&newPassword, "protect", "", "Require this password to open the list")

	addCmd.Flags().StringVar(&itemColor, "color", "", "Item color (server default when empty)")
	checkCmd.Flags().BoolVar(&undo, "undo", false, "Mark the item as not done")
}

func runCreate(cmd *cobra.Command, args []string) error {
	if err := validateOutput(output); err != nil {
		return err
	}

	in := &models.ListCreate{
		Description: description,
		Password:    newPassword,
		ExpiresIn:   expiresIn,
	}
	if len(args) == 1 {
		in.Title = args[0]
	}

	list, err := newAPIClient().CreateList(cmd.Context(), in)
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}

	return render(cmd.OutOrStdout(), output, viewFromList(&models.ListWithItems{List: *list}))
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := validateOutput(output); err != nil {
		return err
	}

	list, err := newAPIClient().FetchList(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load list %s: %w", args[0], err)
	}
	return render(cmd.OutOrStdout(), output, viewFromList(list))
}

func runAdd(cmd *cobra.Command, args []string) error {
	slug, text := args[0], args[1]
	client := newAPIClient()

	list, err := client.FetchList(cmd.Context(), slug)
	if err != nil {
		return fmt.Errorf("failed to load list %s: %w", slug, err)
	}

	item, err := client.AddItem(cmd.Context(), list.ID, &models.ItemCreate{Text: text, Color: itemColor})
	if err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}

	// The item is saved; a failed relay only delays when others see it
	if err := relay(cmd.Context(), slug, func(a *syncagent.Agent) error {
		return a.EmitItemAdded(*item)
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: item saved but not broadcast: %v\n", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ added %d  %s\n", item.ID, item.Text)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	slug := args[0]
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[1])
	}

	completed := !undo
	item, err := newAPIClient().UpdateItem(cmd.Context(), uint(id), &models.ItemPatch{Completed: &completed})
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	if err := relay(cmd.Context(), slug, func(a *syncagent.Agent) error {
		return a.EmitItemUpdated(*item)
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: change saved but not broadcast: %v\n", err)
	}

	state := "done"
	if undo {
		state = "not done"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s marked %s\n", item.Text, state)
	return nil
}

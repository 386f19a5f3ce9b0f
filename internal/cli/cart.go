package cli

import (
	"fmt"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/viewcache"

	"github.com/spf13/cobra"
)

// NewCartCommand creates the cart command and its subcommands.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			v, err := e.sf.Cart(cmd.Context())
			if err != nil {
				return err
			}
			return e.out.View(v)
		},
	})

	var item model.Item
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product (quantities add up)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it := item
			it.ProductID = args[0]
			return runView(rootOpts, cmd, func(e *env) (viewcache.View, error) {
				return e.sf.AddToCart(cmd.Context(), it)
			})
		},
	}
	itemFlags(add, &item)
	add.Flags().Int64VarP(&item.Quantity, "qty", "q", 1, "quantity to add")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set the quantity (0 removes the line)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid quantity %q", args[1]), Err: err}
			}
			return runView(rootOpts, cmd, func(e *env) (viewcache.View, error) {
				return e.sf.UpdateCartQuantity(cmd.Context(), args[0], qty)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(rootOpts, cmd, func(e *env) (viewcache.View, error) {
				return e.sf.RemoveFromCart(cmd.Context(), args[0])
			})
		},
	})

	return cmd
}

func itemFlags(cmd *cobra.Command, item *model.Item) {
	cmd.Flags().StringVar(&item.Name, "name", "", "display name")
	cmd.Flags().Int64Var(&item.Price, "price", 0, "unit price")
	cmd.Flags().StringVar(&item.Image, "image", "", "image URL")
}

func runView(opts *RootOptions, cmd *cobra.Command, fn func(e *env) (viewcache.View, error)) error {
	e, err := opts.open(cmd)
	if err != nil {
		return err
	}
	v, err := fn(e)
	if err != nil {
		return err
	}
	return e.out.View(v)
}

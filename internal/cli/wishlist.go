package cli

import (
	"fmt"

	"storefront/internal/domain/model"
	"storefront/internal/viewcache"

	"github.com/spf13/cobra"
)

// NewWishlistCommand creates the wishlist command and its subcommands.
func NewWishlistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Show and change the wishlist",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the wishlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(rootOpts, cmd, func(e *env) (viewcache.View, error) {
				return e.sf.Wishlist(cmd.Context())
			})
		},
	})

	var addItem model.Item
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product (no-op if already present)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it := addItem
			it.ProductID = args[0]
			return runView(rootOpts, cmd, func(e *env) (viewcache.View, error) {
				return e.sf.AddToWishlist(cmd.Context(), it)
			})
		},
	}
	itemFlags(add, &addItem)
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(rootOpts, cmd, func(e *env) (viewcache.View, error) {
				return e.sf.RemoveFromWishlist(cmd.Context(), args[0])
			})
		},
	})

	var toggleItem model.Item
	toggle := &cobra.Command{
		Use:   "toggle <product-id>",
		Short: "Add the product if missing, remove it otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it := toggleItem
			it.ProductID = args[0]

			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			v, added, err := e.sf.ToggleWishlist(cmd.Context(), it)
			if err != nil {
				return err
			}
			if e.out.Format != "json" {
				verb := "removed"
				if added {
					verb = "added"
				}
				fmt.Fprintf(e.out.Writer, "%s %s\n", verb, it.ProductID)
			}
			return e.out.View(v)
		},
	}
	itemFlags(toggle, &toggleItem)
	cmd.AddCommand(toggle)

	return cmd
}

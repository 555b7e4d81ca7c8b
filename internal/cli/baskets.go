package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/cartshare"
	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cart"
)

func (c *CLI) cartsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "carts",
		Aliases: []string{"baskets"},
		Short:   "List, create and join baskets",
		Args:    cobra.NoArgs,
		RunE:    c.authed(c.listCarts),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Baskets you own or joined",
			Args:  cobra.NoArgs,
			RunE:  c.authed(c.listCarts),
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a basket",
			Args:  cobra.MinimumNArgs(1),
			RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
				name := strings.Join(args, " ")
				if err := app.Cart.Baskets.Create(ctx, name); err != nil {
					return err
				}
				c.printf("Created basket %q.\n", name)
				return c.listCarts(ctx, app, nil)
			}),
		},
		&cobra.Command{
			Use:   "join <share-code>",
			Short: "Join a basket someone shared with you",
			Args:  cobra.ExactArgs(1),
			RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
				msg, err := app.Cart.Baskets.Join(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if msg == "" {
					msg = "Joined the basket."
				}
				c.println(msg)
				return nil
			}),
		},
	)
	return cmd
}

func (c *CLI) listCarts(ctx context.Context, app *cartshare.App, _ []string) error {
	carts, err := app.Cart.Baskets.List(ctx)
	if err != nil {
		return err
	}
	if len(carts) == 0 {
		c.println("You have no baskets yet. Create one with `cartshare carts create <name>`.")
		return nil
	}
	tw := newTable(c.out)
	fmt.Fprintln(tw, "ID\tNAME\tSHARE CODE\tMEMBERS")
	for _, b := range carts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Name, b.ShareCode, strings.Join(b.Members, ", "))
	}
	return tw.Flush()
}

func (c *CLI) cartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart <id>",
		Short: "Work on one basket",
		Long: `Work on one basket. The basket id comes first:

  cartshare cart show 12
  cartshare cart add 12 10:2 21
  cartshare cart qty 12 10 +1`,
		Args: cobra.ExactArgs(1),
		RunE: c.authed(c.showCart),
	}

	var yes bool
	checkout := &cobra.Command{
		Use:   "checkout <id>",
		Short: "Check out the basket into your order history",
		Args:  cobra.ExactArgs(1),
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
			return c.checkout(ctx, app, api.ID(args[0]), yes)
		}),
	}
	checkout.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	var all bool
	apply := &cobra.Command{
		Use:   "apply <id> [product-id]",
		Short: "Swap a line for its cheaper offer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
			var productID api.ID
			if len(args) == 2 {
				productID = api.ID(args[1])
			}
			return c.applySuggestions(ctx, app, api.ID(args[0]), productID, all)
		}),
	}
	apply.Flags().BoolVar(&all, "all", false, "apply every suggestion")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show the lines and totals",
			Args:  cobra.ExactArgs(1),
			RunE:  c.authed(c.showCart),
		},
		&cobra.Command{
			Use:   "add <id> <product-id[:qty]>...",
			Short: "Add products, one request for all of them",
			Args:  cobra.MinimumNArgs(2),
			RunE:  c.authed(c.addToCart),
		},
		&cobra.Command{
			Use:   "qty <id> <product-id> <quantity|+n|-n>",
			Short: "Set or adjust a line quantity",
			Args:  cobra.ExactArgs(3),
			RunE:  c.authed(c.setQuantity),
		},
		&cobra.Command{
			Use:     "rm <id> <product-id>",
			Aliases: []string{"remove"},
			Short:   "Remove a line",
			Args:    cobra.ExactArgs(2),
			RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
				b, err := app.Cart.Baskets.RemoveItem(ctx, api.ID(args[0]), api.ID(args[1]))
				if err != nil {
					return err
				}
				c.println("Removed.")
				return c.printUpdated(ctx, app, api.ID(args[0]), b)
			}),
		},
		&cobra.Command{
			Use:   "toggle <id> <product-id>",
			Short: "Mark a line purchased, or not purchased again",
			Args:  cobra.ExactArgs(2),
			RunE:  c.authed(c.togglePurchased),
		},
		&cobra.Command{
			Use:   "suggestions <id>",
			Short: "Cheaper offers for the lines in the basket",
			Args:  cobra.ExactArgs(1),
			RunE:  c.authed(c.showSuggestions),
		},
		apply,
		checkout,
	)
	return cmd
}

// basket loads the enriched view of cartID through the cache.
func basket(ctx context.Context, app *cartshare.App, cartID api.ID) (*api.ShoppingBasket, error) {
	sel, err := app.Cart.Baskets.Detail(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if sel == nil || sel.CurrentBasket == nil {
		return nil, message(fmt.Sprintf("Basket %s not found.", cartID))
	}
	return sel.CurrentBasket, nil
}

func (c *CLI) showCart(ctx context.Context, app *cartshare.App, args []string) error {
	b, err := basket(ctx, app, api.ID(args[0]))
	if err != nil {
		return err
	}
	return c.printBasket(b)
}

// printUpdated prints the basket a mutation returned. The backend may answer
// with an empty body, in which case cartID is read again.
func (c *CLI) printUpdated(ctx context.Context, app *cartshare.App, cartID api.ID, b *api.ShoppingBasket) error {
	if b == nil {
		app.Cart.Baskets.Refresh(cartID)
		var err error
		if b, err = basket(ctx, app, cartID); err != nil {
			return err
		}
	}
	return c.printBasket(b)
}

func (c *CLI) printBasket(b *api.ShoppingBasket) error {
	c.printf("%s (#%s)", b.Name, b.ID)
	if b.ShareCode != "" {
		c.printf("  share code %s", b.ShareCode)
	}
	c.println()
	if len(b.Members) > 0 {
		c.printf("Members: %s\n", strings.Join(b.Members, ", "))
	}
	if len(b.Items) == 0 {
		c.println("The basket is empty. Add products with `cartshare cart add`.")
		return nil
	}

	tw := newTable(c.out)
	fmt.Fprintln(tw, "\tPRODUCT\tNAME\tSTORE\tQTY\tPRICE\tLINE\tCHEAPER")
	for _, it := range b.Items {
		mark := "[ ]"
		if it.Purchased {
			mark = "[x]"
		}
		cheaper := ""
		if it.LowerPriceItem != nil {
			cheaper = fmt.Sprintf("%s at %s", money(it.LowerPriceItem.Price), it.LowerPriceItem.StoreName)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			mark, it.ProductID, it.ProductName, it.StoreName, it.Quantity, money(it.Price), money(it.LineTotal()), cheaper)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	totals := cart.ComputeTotals(b)
	c.printf("Items: %d  Total: %s  Remaining: %s\n", totals.ItemCount, money(totals.Total), money(totals.Remaining))
	if totals.PotentialSavings.IsPositive() {
		c.printf("With suggestions: %s (save %s, see `cartshare cart suggestions %s`)\n",
			money(totals.TotalFromSuggestions), money(totals.PotentialSavings), b.ID)
	}
	if r := cart.Reconcile(b); !r.Balanced() {
		c.printf("Note: the lines add up to %s but the shop reports %s.\n", money(r.Computed), money(r.Reported))
	}
	return nil
}

// parseLine reads "product" or "product:qty".
func parseLine(arg string) (api.ID, int, error) {
	id, qty, found := strings.Cut(arg, ":")
	if id == "" {
		return "", 0, message(fmt.Sprintf("Missing product id in %q.", arg))
	}
	if !found {
		return api.ID(id), 1, nil
	}
	n, err := strconv.Atoi(qty)
	if err != nil {
		return "", 0, message(fmt.Sprintf("Quantity in %q is not a number.", arg))
	}
	return api.ID(id), n, nil
}

func (c *CLI) addToCart(ctx context.Context, app *cartshare.App, args []string) error {
	cartID := api.ID(args[0])
	staged := cart.NewStaging()
	for _, arg := range args[1:] {
		id, qty, err := parseLine(arg)
		if err != nil {
			return err
		}
		staged.Adjust(id, qty)
	}
	if staged.Len() == 0 {
		c.println("Nothing to add.")
		return nil
	}

	b, err := app.Cart.Baskets.AddItems(ctx, cartID, staged.Items())
	if err != nil {
		return err
	}
	c.printf("Added %d product(s).\n", staged.Len())
	return c.printUpdated(ctx, app, cartID, b)
}

func (c *CLI) setQuantity(ctx context.Context, app *cartshare.App, args []string) error {
	cartID, productID, value := api.ID(args[0]), api.ID(args[1]), args[2]

	n, err := strconv.Atoi(value)
	if err != nil {
		return message(fmt.Sprintf("%q is not a quantity.", value))
	}

	var b *api.ShoppingBasket
	if strings.HasPrefix(value, "+") || strings.HasPrefix(value, "-") {
		current, err := basket(ctx, app, cartID)
		if err != nil {
			return err
		}
		item, ok := current.Item(productID)
		if !ok {
			return message(fmt.Sprintf("Product %s is not in the basket.", productID))
		}
		b, err = app.Cart.Baskets.AdjustQuantity(ctx, cartID, item, n)
		if err != nil {
			return quantityError(err)
		}
	} else {
		if b, err = app.Cart.Baskets.UpdateQuantity(ctx, cartID, productID, n); err != nil {
			return quantityError(err)
		}
	}
	return c.printUpdated(ctx, app, cartID, b)
}

func quantityError(err error) error {
	if errors.Is(err, cart.ErrInvalidQuantity) {
		return message("Quantity must be at least 1. Use `cartshare cart rm` to remove a line.")
	}
	return err
}

func (c *CLI) togglePurchased(ctx context.Context, app *cartshare.App, args []string) error {
	cartID, productID := api.ID(args[0]), api.ID(args[1])
	current, err := basket(ctx, app, cartID)
	if err != nil {
		return err
	}
	item, ok := current.Item(productID)
	if !ok {
		return message(fmt.Sprintf("Product %s is not in the basket.", productID))
	}
	b, err := app.Cart.Baskets.TogglePurchased(ctx, cartID, productID, !item.Purchased)
	if err != nil {
		return err
	}
	return c.printUpdated(ctx, app, cartID, b)
}

func (c *CLI) showSuggestions(ctx context.Context, app *cartshare.App, args []string) error {
	b, err := basket(ctx, app, api.ID(args[0]))
	if err != nil {
		return err
	}
	suggestions := cart.ComputeSuggestions(b)
	if len(suggestions) == 0 {
		c.println("No cheaper offers. Your basket is already the best deal.")
		return nil
	}

	tw := newTable(c.out)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tNOW\tCHEAPER\tSTORE\tSAVES")
	for _, s := range suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.OriginalItem.ProductID, s.OriginalItem.ProductName, money(s.OriginalItem.Price),
			money(s.Alternative.Price), s.Alternative.StoreName, money(s.Savings))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	c.printf("Potential savings: %s\n", money(cart.TotalPotentialSavings(suggestions)))
	return nil
}

func (c *CLI) applySuggestions(ctx context.Context, app *cartshare.App, cartID, productID api.ID, all bool) error {
	b, err := basket(ctx, app, cartID)
	if err != nil {
		return err
	}
	suggestions := cart.ComputeSuggestions(b)

	var picked []cart.Suggestion
	for _, s := range suggestions {
		if all || s.OriginalItem.ProductID == productID {
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		if productID == "" && !all {
			return message("Name a product or pass --all.")
		}
		c.println("No matching suggestion.")
		return nil
	}

	for _, s := range picked {
		if b, err = app.Cart.Baskets.ApplySuggestion(ctx, cartID, s); err != nil {
			return err
		}
		c.printf("Swapped %s for the offer at %s, saving %s.\n",
			s.OriginalItem.ProductName, s.Alternative.StoreName, money(s.Savings))
	}
	return c.printUpdated(ctx, app, cartID, b)
}

func (c *CLI) checkout(ctx context.Context, app *cartshare.App, cartID api.ID, yes bool) error {
	// Checkout acts on the selected basket, so select this one first.
	sel, err := app.Cart.Baskets.Select(ctx, cartID)
	if err != nil {
		return err
	}
	if sel == nil || sel.CurrentBasket == nil {
		return message(fmt.Sprintf("Basket %s not found.", cartID))
	}
	b := sel.CurrentBasket
	if len(b.Items) == 0 {
		return message("The basket is empty, there is nothing to check out.")
	}

	if !yes {
		ok, err := c.confirm(fmt.Sprintf("Check out %s for %s?", b.Name, money(b.Total)))
		if err != nil {
			return err
		}
		if !ok {
			c.println("Checkout canceled.")
			return nil
		}
	}

	msg, err := app.Cart.CheckoutBasket(ctx, cartID)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "Checkout completed."
	}
	c.println(msg)
	return nil
}

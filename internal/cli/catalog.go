package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/itsneelabh/cartshare"
	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cart"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (c *CLI) homeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Recent orders and the current basket",
		Args:  cobra.NoArgs,
		RunE:  c.runHome,
	}
}

func (c *CLI) runHome(cmd *cobra.Command, args []string) error {
	return c.open(func(ctx context.Context, app *cartshare.App, _ []string) error {
		if !app.Auth.IsAuthenticated() {
			c.println("Welcome to cartshare: shared shopping baskets with the best price from every store.")
			c.println("Sign in with `cartshare login` or create an account with `cartshare register`.")
			return nil
		}

		c.printf("Hello, %s.\n", displayName(app.Auth.User()))

		recent, err := app.Cart.History.Recent(ctx, api.DefaultRecentLimit)
		if err != nil {
			return err
		}
		c.println()
		c.println("Recent orders")
		if len(recent) == 0 {
			c.println("  none yet")
		} else if err := c.printHistory(recent, false); err != nil {
			return err
		}

		items, err := app.Cart.Baskets.Current(ctx)
		if err != nil {
			return err
		}
		c.println()
		c.println("Current basket")
		if len(items) == 0 {
			c.println("  empty. Pick one with `cartshare carts` and `cartshare cart show <id>`.")
			return nil
		}
		tw := newTable(c.out)
		for _, it := range items {
			fmt.Fprintf(tw, "  %d x\t%s\t%s\t%s\n", it.Quantity, it.RawName, it.StoreName, money(it.Price))
		}
		return tw.Flush()
	})(cmd, args)
}

func (c *CLI) aboutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "About cartshare",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.println(`cartshare compares the prices of everyday products across stores and keeps
one shopping basket shared by everyone who shops together.

Mission: help households spend less on groceries without extra effort.
Vision:  a shopping list that always knows the cheapest store.
Values:  transparent prices, shared decisions, no surprises at the till.`)
		},
	}
}

func (c *CLI) contactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contact",
		Short: "How to reach us",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			tw := newTable(c.out)
			fmt.Fprintln(tw, "Address\tSofia, Bulgaria")
			fmt.Fprintln(tw, "Email\tsupport@cartify.com")
			fmt.Fprintln(tw, "Phone\t+359 123 456 789")
			_ = tw.Flush()
		},
	}
}

func (c *CLI) productsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalog and compare store prices",
	}

	var order string
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search products by name",
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
			products, err := app.Cart.Products.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return c.printProducts(cart.FilterProducts(products, "", cart.ParseSortOrder(order)), nil)
		}),
	}
	search.Flags().StringVar(&order, "sort", "asc", "price order, asc or desc")

	var (
		offerOrder string
		filter     string
		cartID     string
	)
	offers := &cobra.Command{
		Use:   "offers <group-id>",
		Short: "Every store's price for one product",
		Args:  cobra.ExactArgs(1),
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
			products, err := app.Cart.Products.Offers(ctx, api.ID(args[0]))
			if err != nil {
				return err
			}
			products = cart.FilterProducts(products, filter, cart.ParseSortOrder(offerOrder))

			var b *api.ShoppingBasket
			if cartID != "" {
				if b, err = basket(ctx, app, api.ID(cartID)); err != nil {
					return err
				}
			}
			return c.printProducts(products, b)
		}),
	}
	offers.Flags().StringVar(&offerOrder, "sort", "asc", "price order, asc or desc")
	offers.Flags().StringVar(&filter, "filter", "", "keep offers whose name or store contains this")
	offers.Flags().StringVar(&cartID, "cart", "", "mark offers already in this basket")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "categories",
			Short: "Product groups",
			Args:  cobra.NoArgs,
			RunE: c.authed(func(ctx context.Context, app *cartshare.App, _ []string) error {
				groups, err := app.Cart.Products.Categories(ctx)
				if err != nil {
					return err
				}
				tw := newTable(c.out)
				fmt.Fprintln(tw, "GROUP\tNAME\tCATEGORY")
				for _, g := range groups {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", g.ID, g.CanonicalName, g.Category)
				}
				return tw.Flush()
			}),
		},
		search,
		offers,
		&cobra.Command{
			Use:   "show <product-id>",
			Short: "One store offer",
			Args:  cobra.ExactArgs(1),
			RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
				p, err := app.Cart.Products.Get(ctx, api.ID(args[0]))
				if err != nil {
					return err
				}
				if p == nil {
					return message(fmt.Sprintf("Product %s not found.", args[0]))
				}
				c.printf("%s\n%s  %s %s\n", p.Name, p.StoreName, money(p.Price), p.Currency)
				return nil
			}),
		},
	)
	return cmd
}

// printProducts lists products; with a basket, products already in it are
// listed first and marked.
func (c *CLI) printProducts(products []api.Product, b *api.ShoppingBasket) error {
	if len(products) == 0 {
		c.println("No products found.")
		return nil
	}
	added, available := products, []api.Product(nil)
	if b != nil {
		added, available = cart.PartitionProducts(products, b, nil)
	}

	tw := newTable(c.out)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tSTORE\tPRICE\t")
	for _, p := range added {
		mark := ""
		if b != nil {
			mark = "in basket"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ProductID, p.Name, p.StoreName, money(p.Price), mark)
	}
	for _, p := range available {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", p.ProductID, p.Name, p.StoreName, money(p.Price))
	}
	return tw.Flush()
}

func (c *CLI) historyCommand() *cobra.Command {
	showAll := func(ctx context.Context, app *cartshare.App, _ []string) error {
		orders, err := app.Cart.History.All(ctx)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			c.println("No orders yet.")
			return nil
		}
		return c.printHistory(orders, true)
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "The latest orders",
		Args:  cobra.NoArgs,
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, _ []string) error {
			orders, err := app.Cart.History.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				c.println("No orders yet.")
				return nil
			}
			return c.printHistory(orders, false)
		}),
	}
	recent.Flags().IntVarP(&limit, "limit", "n", api.DefaultRecentLimit, "how many orders")

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Your checked out baskets",
		Args:  cobra.NoArgs,
		RunE:  c.authed(showAll),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "all",
			Short: "Every order",
			Args:  cobra.NoArgs,
			RunE:  c.authed(showAll),
		},
		recent,
	)
	return cmd
}

func (c *CLI) printHistory(orders []api.History, withItems bool) error {
	tw := newTable(c.out)
	for _, h := range orders {
		fmt.Fprintf(tw, "  #%s\t%s\t%s %s\t%s\n", h.ID, h.BasketName, money(h.TotalSpent), h.Currency, h.ClosedAt)
		if !withItems {
			continue
		}
		for _, it := range h.Items {
			fmt.Fprintf(tw, "\t  %d x %s\t%s\t\n", it.Quantity, it.ProductName, money(it.PriceAtPurchase))
		}
	}
	return tw.Flush()
}

package cart

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/itsneelabh/cartshare/api"
)

// Suggestion proposes replacing a basket line with a cheaper offer.
type Suggestion struct {
	OriginalItem api.BasketItem
	Alternative  api.PriceComparison
	// Savings is (original price - alternative price) × quantity.
	Savings decimal.Decimal
}

// ComputeSuggestions lists a suggestion for every line that has a cheaper
// offer, biggest savings first. Lines with equal savings keep basket order.
func ComputeSuggestions(basket *api.ShoppingBasket) []Suggestion {
	if basket == nil {
		return nil
	}
	var out []Suggestion
	for _, item := range basket.Items {
		if item.LowerPriceItem == nil {
			continue
		}
		savings := item.Price.Sub(item.LowerPriceItem.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		out = append(out, Suggestion{
			OriginalItem: item,
			Alternative:  *item.LowerPriceItem,
			Savings:      savings,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Savings.GreaterThan(out[j].Savings)
	})
	return out
}

// TotalPotentialSavings sums the savings of every suggestion.
func TotalPotentialSavings(suggestions []Suggestion) decimal.Decimal {
	total := decimal.Zero
	for _, s := range suggestions {
		total = total.Add(s.Savings)
	}
	return total
}

// ApplySuggestion swaps the original line for its alternative: it removes
// the original product, then adds the alternative with the original
// quantity. The two steps are separate requests. When the add fails after a
// successful remove the error wraps ErrPartialApply and the basket no longer
// holds either product.
func (b *Baskets) ApplySuggestion(ctx context.Context, cartID api.ID, s Suggestion) (*api.ShoppingBasket, error) {
	var out *api.ShoppingBasket
	attrs := map[string]interface{}{
		"cart.id":        cartID.String(),
		"product.id":     s.OriginalItem.ProductID.String(),
		"alternative.id": s.Alternative.ProductID.String(),
	}
	err := b.trace(ctx, "ApplySuggestion", attrs, func(ctx context.Context) error {
		if _, err := b.RemoveItem(ctx, cartID, s.OriginalItem.ProductID); err != nil {
			return fmt.Errorf("remove %s: %w", s.OriginalItem.ProductName, err)
		}

		basket, err := b.AddItems(ctx, cartID, []api.AddItemRequest{{
			ProductID: s.Alternative.ProductID,
			Quantity:  s.OriginalItem.Quantity,
		}})
		if err != nil {
			b.logger.ErrorWithContext(ctx, "Suggestion left basket without the item", map[string]interface{}{
				"cart_id":        cartID.String(),
				"product_id":     s.OriginalItem.ProductID.String(),
				"alternative_id": s.Alternative.ProductID.String(),
				"error":          err.Error(),
			})
			return fmt.Errorf("%w: %s was removed but %s at %s was not added: %w",
				ErrPartialApply, s.OriginalItem.ProductName, s.OriginalItem.ProductName, s.Alternative.StoreName, err)
		}
		out = basket
		return nil
	})
	return out, err
}

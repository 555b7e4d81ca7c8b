package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsneelabh/cartshare/api"
)

func catalog() []api.Product {
	return []api.Product{
		{ProductID: "1", Name: "Whole Milk", StoreName: "Lidl", Price: dec("1.80")},
		{ProductID: "2", Name: "Bread", StoreName: "Kaufland", Price: dec("1.20")},
		{ProductID: "3", Name: "Oat milk", StoreName: "Billa", Price: dec("2.40")},
		{ProductID: "4", Name: "Cheese", StoreName: "Milkshop", Price: dec("5.00")},
	}
}

func ids(products []api.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ProductID.String())
	}
	return out
}

func TestFilterProducts(t *testing.T) {
	tests := []struct {
		name  string
		query string
		order SortOrder
		want  []string
	}{
		{"empty query keeps all ascending", "", PriceAscending, []string{"2", "1", "3", "4"}},
		{"descending", "", PriceDescending, []string{"4", "3", "1", "2"}},
		{"name or store, case insensitive", "MILK", PriceAscending, []string{"1", "3", "4"}},
		{"store only", "kauf", PriceAscending, []string{"2"}},
		{"no match", "coffee", PriceAscending, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterProducts(catalog(), tt.query, tt.order)))
		})
	}

	in := catalog()
	FilterProducts(in, "", PriceDescending)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(in), "input is not reordered")

	assert.Equal(t, PriceDescending, ParseSortOrder("DESC"))
	assert.Equal(t, PriceAscending, ParseSortOrder("sideways"))
}

func TestStaging(t *testing.T) {
	s := NewStaging()
	assert.Equal(t, 1, s.Add("a"))
	assert.Equal(t, 2, s.Add("a"))
	assert.Equal(t, 3, s.Set("b", 3))
	assert.Equal(t, 1, s.Adjust("a", -1))
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, []api.AddItemRequest{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 3}}, s.Items())

	assert.Equal(t, 0, s.Adjust("a", -1), "dropping to zero removes the product")
	assert.Equal(t, 0, s.Quantity("a"))
	assert.Equal(t, 0, s.Set("c", -2))
	assert.Equal(t, 1, s.Len())

	s.Remove("b")
	assert.Empty(t, s.Items())

	s.Add("z")
	s.Reset()
	assert.Zero(t, s.Len())

	var nilStaging *Staging
	assert.Zero(t, nilStaging.Quantity("a"))
}

func TestPartitionProducts(t *testing.T) {
	b := basket("c1", api.BasketItem{ProductID: "1", Quantity: 1, Price: dec("1.80")})
	staged := NewStaging()
	staged.Add("3")

	added, available := PartitionProducts(catalog(), b, staged)
	assert.Equal(t, []string{"1", "3"}, ids(added))
	assert.Equal(t, []string{"2", "4"}, ids(available))

	added, available = PartitionProducts(catalog(), nil, nil)
	assert.Empty(t, added)
	assert.Len(t, available, 4)
}

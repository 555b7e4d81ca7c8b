package cart

import (
	"strconv"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/cache"
)

// Query keys. Every key of a resource starts with its All key, so
// invalidating All reaches all of them.
var (
	BasketKeys  basketKeys
	ProductKeys productKeys
	HistoryKeys historyKeys
)

type basketKeys struct{}

func (basketKeys) All() cache.Key { return cache.NewKey("baskets") }
func (k basketKeys) List() cache.Key { return k.All().Append("list") }
func (k basketKeys) Details() cache.Key { return k.All().Append("detail") }
func (k basketKeys) Detail(id api.ID) cache.Key { return k.Details().Append(id.String()) }
func (k basketKeys) Current() cache.Key { return k.All().Append("current") }

// Selected holds the id of the basket the backend last selected for this
// user. It is dropped with the rest of the cache on sign-in and sign-out.
func (k basketKeys) Selected() cache.Key { return k.All().Append("selected") }

type productKeys struct{}

func (productKeys) All() cache.Key { return cache.NewKey("products") }
func (k productKeys) Categories() cache.Key { return k.All().Append("categories") }
func (k productKeys) Search(query string) cache.Key { return k.All().Append("search", query) }
func (k productKeys) Offers(groupID api.ID) cache.Key { return k.All().Append("offers", groupID.String()) }
func (k productKeys) Detail(id api.ID) cache.Key { return k.All().Append("detail", id.String()) }

type historyKeys struct{}

func (historyKeys) All() cache.Key { return cache.NewKey("history") }
func (k historyKeys) List() cache.Key { return k.All().Append("list") }
func (k historyKeys) Recent(limit int) cache.Key { return k.All().Append("recent", strconv.Itoa(limit)) }

package catalog

import "sort"

const (
	// DefaultFeaturedCapacity applies when Distribute is given a non-positive cap.
	DefaultFeaturedCapacity = 9

	gridCategories = 6
	perCategory    = 4
	giftsCapacity  = 12
)

// CategoryGroup is one cell of the home page grid.
type CategoryGroup struct {
	Category Category
	Products []Product
}

// Distribution is the home page arrangement. A product id appears in at most one bucket.
type Distribution struct {
	Grid     []CategoryGroup
	Gifts    []Product
	Featured []Product
}

// GridByCategory indexes the grid by category id.
func (d Distribution) GridByCategory() map[int64][]Product {
	out := make(map[int64][]Product, len(d.Grid))
	for _, g := range d.Grid {
		out[g.Category.ID] = g.Products
	}
	return out
}

// idSet records product ids already placed. Each step clones the set it receives once and
// returns the extended copy, so callers never see their own set mutated.
type idSet map[int64]struct{}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) add(id int64) {
	s[id] = struct{}{}
}

func (s idSet) clone() idSet {
	out := make(idSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Distribute fills the grid, then gifts, then featured, each step drawing only from products
// the previous steps left unused. Selection is greedy and keeps input order except for the
// price ranking inside featured.
func Distribute(products []Product, categories []Category, featuredCap int) Distribution {
	if featuredCap <= 0 {
		featuredCap = DefaultFeaturedCapacity
	}
	used := idSet{}

	grid, used := pickGrid(products, categories, used)
	gifts, used := pickGifts(products, categories, used)
	featured, _ := pickFeatured(products, featuredCap, used)

	return Distribution{Grid: grid, Gifts: gifts, Featured: featured}
}

func pickGrid(products []Product, categories []Category, used idSet) ([]CategoryGroup, idSet) {
	if len(categories) > gridCategories {
		categories = categories[:gridCategories]
	}
	used = used.clone()
	groups := make([]CategoryGroup, 0, len(categories))
	for _, c := range categories {
		var own []Product
		for _, p := range products {
			if len(own) == perCategory {
				break
			}
			if p.InCategory(c.ID) && p.HasMedia() && !used.has(p.ID) {
				own = append(own, p)
				used.add(p.ID)
			}
		}
		groups = append(groups, CategoryGroup{Category: c, Products: own})
	}

	for i := range groups {
		for _, p := range products {
			if len(groups[i].Products) >= perCategory {
				break
			}
			if p.HasMedia() && !used.has(p.ID) {
				groups[i].Products = append(groups[i].Products, p)
				used.add(p.ID)
			}
		}
	}
	return groups, used
}

func pickGifts(products []Product, categories []Category, used idSet) ([]Product, idSet) {
	kitchen := map[int64]bool{}
	for _, c := range categories {
		if c.IsKitchen() {
			kitchen[c.ID] = true
		}
	}
	used = used.clone()
	var gifts []Product
	for _, p := range products {
		if len(gifts) == giftsCapacity {
			break
		}
		if !p.HasMedia() || used.has(p.ID) {
			continue
		}
		if p.CategoryID != nil && kitchen[*p.CategoryID] {
			continue
		}
		gifts = append(gifts, p)
		used.add(p.ID)
	}
	return gifts, used
}

func pickFeatured(products []Product, capacity int, used idSet) ([]Product, idSet) {
	seen := used.clone()
	flagged := make([]Product, 0, len(products))
	rest := make([]Product, 0, len(products))
	for _, p := range products {
		if seen.has(p.ID) {
			continue
		}
		seen.add(p.ID)
		if p.IsFeatured {
			flagged = append(flagged, p)
		} else {
			rest = append(rest, p)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].sortPrice().GreaterThan(rest[j].sortPrice())
	})

	ordered := append(flagged, rest...)
	if len(ordered) > capacity {
		ordered = ordered[:capacity]
	}
	used = used.clone()
	for _, p := range ordered {
		used.add(p.ID)
	}
	return ordered, used
}

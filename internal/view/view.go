// Package view はインベントリ一覧の絞り込み・並び替えと集計を行う。
// 入力のアイテム列とフィルタ指定から表示用のビューを作る純粋関数のみを持つ。
package view

import (
	"math"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// SortKey は並び順の指定。
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortNameAsc   SortKey = "name_asc"
	SortNameDesc  SortKey = "name_desc"
	SortPriceHigh SortKey = "price_high"
	SortPriceLow  SortKey = "price_low"
)

// minPriceCeiling は価格スライダー上限の下限値。
const minPriceCeiling = 100

// Filter は一覧の絞り込みと並び替えの指定。
// ゼロ値は「絞り込みなし・入力順」を表す。
type Filter struct {
	Search   string
	Types    []string
	Rarities []string
	Sort     SortKey
	PriceMin *float64
	PriceMax *float64
}

// Item は表示用のアイテム。Priceは絞り込みと並び替えに使う実効価格。
type Item struct {
	model.InventoryItem
	Price  float64 `json:"price"`
	Listed bool    `json:"listed"`
}

// View は絞り込み結果とファセット。
// Types、Rarities、MaxPriceは絞り込み前の全アイテムから計算する。
type View struct {
	Items    []Item   `json:"items"`
	Types    []string `json:"types"`
	Rarities []string `json:"rarities"`
	MaxPrice float64  `json:"max_price"`
	Total    int      `json:"total"`
}

// ParseFilter はクエリパラメータからFilterを組み立てる。
// types、raritiesは繰り返し指定とカンマ区切りの両方を受け付ける。
// 未知のsortはnewest、数値にできない価格は指定なしとして扱う。
func ParseFilter(q url.Values) Filter {
	f := Filter{
		Search:   strings.TrimSpace(q.Get("search")),
		Types:    splitList(q["types"]),
		Rarities: splitList(q["rarities"]),
		Sort:     parseSort(q.Get("sort")),
		PriceMin: parsePrice(q.Get("price_min")),
		PriceMax: parsePrice(q.Get("price_max")),
	}
	return f.normalized()
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseSort(raw string) SortKey {
	switch k := SortKey(strings.TrimSpace(raw)); k {
	case SortNewest, SortNameAsc, SortNameDesc, SortPriceHigh, SortPriceLow:
		return k
	default:
		return SortNewest
	}
}

func parsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// normalized は逆転した価格範囲を入れ替え、未知の並び順をnewestにする。
func (f Filter) normalized() Filter {
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		low, high := *f.PriceMax, *f.PriceMin
		f.PriceMin, f.PriceMax = &low, &high
	}
	f.Sort = parseSort(string(f.Sort))
	return f
}

// typeKey は種別ラベルの比較用キー。
func typeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rarityKey はレアリティ色の比較用キー。先頭の#を除き小文字にする。
func rarityKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

// Compose は絞り込み（検索→種別→レアリティ色→価格）、安定ソート、ファセット計算を行う。
// listedは出品中のアセットIDの集合で、表示フラグにのみ使い絞り込みには使わない。
func Compose(items []model.InventoryItem, filter Filter, listed map[string]struct{}) View {
	filter = filter.normalized()

	all := lo.Map(items, func(it model.InventoryItem, _ int) Item {
		_, isListed := listed[it.AssetID]
		return Item{InventoryItem: it, Price: it.EffectivePrice(), Listed: isListed}
	})

	result := slices.Clone(all)

	if filter.Search != "" {
		fold := cases.Fold()
		needle := fold.String(filter.Search)
		result = lo.Filter(result, func(it Item, _ int) bool {
			return strings.Contains(fold.String(it.Name), needle)
		})
	}

	if types := selection(filter.Types, typeKey); len(types) > 0 {
		result = lo.Filter(result, func(it Item, _ int) bool {
			_, ok := types[typeKey(it.Rarity)]
			return ok
		})
	}

	if rarities := selection(filter.Rarities, rarityKey); len(rarities) > 0 {
		result = lo.Filter(result, func(it Item, _ int) bool {
			_, ok := rarities[rarityKey(it.RarityColor)]
			return ok
		})
	}

	if filter.PriceMin != nil || filter.PriceMax != nil {
		lower, upper := math.Inf(-1), math.Inf(1)
		if filter.PriceMin != nil {
			lower = *filter.PriceMin
		}
		if filter.PriceMax != nil {
			upper = *filter.PriceMax
		}
		result = lo.Filter(result, func(it Item, _ int) bool {
			return it.Price >= lower && it.Price <= upper
		})
	}

	sortItems(result, filter.Sort)

	return View{
		Items:    result,
		Types:    facet(all, func(it Item) string { return typeKey(it.Rarity) }),
		Rarities: facet(all, func(it Item) string { return rarityKey(it.RarityColor) }),
		MaxPrice: maxPrice(all),
		Total:    len(all),
	}
}

// selection は選択値を正規化した集合にする。空文字は無視する。
func selection(values []string, key func(string) string) map[string]struct{} {
	keys := lo.Compact(lo.Map(values, func(v string, _ int) string { return key(v) }))
	return lo.SliceToMap(keys, func(k string) (string, struct{}) { return k, struct{}{} })
}

func facet(items []Item, key func(Item) string) []string {
	values := lo.Uniq(lo.Compact(lo.Map(items, func(it Item, _ int) string { return key(it) })))
	sort.Strings(values)
	return values
}

// maxPrice は全アイテムの実効価格の最大値と100の大きい方を切り上げた値を返す。
func maxPrice(items []Item) float64 {
	highest := lo.Max(lo.Map(items, func(it Item, _ int) float64 { return it.Price }))
	return math.Ceil(math.Max(highest, minPriceCeiling))
}

// sortItems は並び順に従って安定ソートする。newestは入力順を維持する。
func sortItems(items []Item, key SortKey) {
	switch key {
	case SortNameAsc, SortNameDesc:
		c := collate.New(language.English)
		if key == SortNameAsc {
			sort.SliceStable(items, func(i, j int) bool {
				return c.CompareString(items[i].Name, items[j].Name) < 0
			})
		} else {
			sort.SliceStable(items, func(i, j int) bool {
				return c.CompareString(items[i].Name, items[j].Name) > 0
			})
		}
	case SortPriceHigh:
		sort.SliceStable(items, func(i, j int) bool { return items[i].Price > items[j].Price })
	case SortPriceLow:
		sort.SliceStable(items, func(i, j int) bool { return items[i].Price < items[j].Price })
	}
}

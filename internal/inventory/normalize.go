// Package inventory はSteamインベントリの取得と正規化を提供する。
package inventory

import (
	"bytes"
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// json は数値を文字列のまま保持する設定。アセットIDの桁落ちを避ける。
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// steamIconCDN はアイコンハッシュだけが返ってきた場合に前置するURL。
const steamIconCDN = "https://community.cloudflare.steamstatic.com/economy/image/"

const inventorySource = "インベントリAPI"

// フィールド名のフォールバック順。先頭が優先。
var (
	assetIDKeys     = []string{"assetid", "id"}
	nameKeys        = []string{"market_hash_name", "markethashname", "market_name", "marketname", "name"}
	imageKeys       = []string{"icon_url_large", "icon_url", "image"}
	inspectLinkKeys = []string{"inspect_link", "inspectlink"}
)

// Normalize は外部インベントリAPIの生レスポンスを正規化したアイテム列に変換する。
// 入力の順序を保ち、アセットIDを持たないアイテムは除外する。
// 空・null・アイテム集合なしは空の結果で、解釈できないルート形状はUPSTREAM_UNAVAILABLEを返す。
// 同じ入力に対して常に同じ結果を返す。
func Normalize(raw []byte, steamID string) ([]model.InventoryItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []model.InventoryItem{}, nil
	}

	var root any
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return nil, model.NewUpstreamUnavailableError(inventorySource).
			WithCause(fmt.Errorf("failed to parse inventory payload: %w", err))
	}

	entries, err := collectEntries(root)
	if err != nil {
		return nil, err
	}

	items := make([]model.InventoryItem, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item, ok := normalizeItem(obj, steamID)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// collectEntries はルートからアイテムの配列を取り出す。
// Steamコミュニティ形式（assets + descriptions）はclassid/instanceidで結合する。
func collectEntries(root any) ([]any, error) {
	switch v := root.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case map[string]any:
		if items, present := v["items"]; present {
			return asCollection(items)
		}
		assets, present := v["assets"]
		if !present {
			return nil, nil
		}
		assetList, err := asCollection(assets)
		if err != nil {
			return nil, err
		}
		descs, err := asCollection(v["descriptions"])
		if err != nil || len(descs) == 0 {
			return assetList, nil
		}
		return joinDescriptions(assetList, descs), nil
	default:
		return nil, model.NewUpstreamUnavailableError(inventorySource).
			WithCause(fmt.Errorf("unexpected inventory root type %T", root))
	}
}

// asCollection はアイテム列を配列として取り出す。
// キー付きオブジェクト（旧rgInventory形式）はキー順に並べた値を返す。
// 数値キーは数値として比較し、数値キーを文字列キーより前に置く。
func asCollection(v any) ([]any, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return c, nil
	case map[string]any:
		keys := slices.SortedFunc(maps.Keys(c), compareCollectionKeys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, c[k])
		}
		return out, nil
	default:
		return nil, model.NewUpstreamUnavailableError(inventorySource).
			WithCause(fmt.Errorf("unexpected inventory collection type %T", v))
	}
}

func compareCollectionKeys(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// joinDescriptions はassetsの各要素に対応するdescriptionのフィールドを重ねる。
// アセット側のフィールドが優先される。
func joinDescriptions(assets, descs []any) []any {
	byClass := make(map[string]map[string]any, len(descs))
	for _, d := range descs {
		desc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		byClass[classKey(desc)] = desc
	}

	out := make([]any, 0, len(assets))
	for _, a := range assets {
		asset, ok := a.(map[string]any)
		if !ok {
			continue
		}
		merged := make(map[string]any, len(asset)+8)
		if desc, ok := byClass[classKey(asset)]; ok {
			for k, v := range desc {
				merged[k] = v
			}
		}
		for k, v := range asset {
			merged[k] = v
		}
		out = append(out, merged)
	}
	return out
}

func classKey(m map[string]any) string {
	classID, _ := scalarString(m["classid"])
	instanceID, _ := scalarString(m["instanceid"])
	return classID + "_" + instanceID
}

// normalizeItem は1件のアイテムを正規化する。アセットIDがなければfalseを返す。
func normalizeItem(obj map[string]any, steamID string) (model.InventoryItem, bool) {
	assetID := firstString(obj, assetIDKeys)
	if assetID == "" {
		return model.InventoryItem{}, false
	}

	item := model.InventoryItem{
		AssetID:     assetID,
		Name:        firstString(obj, nameKeys),
		Image:       expandIcon(firstString(obj, imageKeys)),
		RarityColor: rarityColor(obj),
		Rarity:      rarityLabel(obj),
		InspectLink: inspectLink(obj, steamID, assetID),
		Float:       floatInfo(obj),
		PriceLatest: optionalNumber(obj["pricelatest"]),
		PriceReal:   optionalNumber(obj["pricereal"]),
		PriceAvg:    optionalNumber(obj["priceavg"]),
		PriceMedian: optionalNumber(obj["pricemedian"]),
	}
	return item, true
}

// firstString はkeysの順に探し、最初に見つかった空でない値を返す。
func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := scalarString(obj[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

// scalarString は文字列・数値を文字列として返す。
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case numberLike:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

// numberLike はUseNumber指定時に返される数値型が満たすインターフェース。
type numberLike interface {
	String() string
	Float64() (float64, error)
}

func expandIcon(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return steamIconCDN + ref
}

// rarityColor は整形済みの色を優先し、なければname_colorに#を付けて合成する。
func rarityColor(obj map[string]any) string {
	if s, ok := scalarString(obj["rarity_color"]); ok && s != "" {
		return s
	}
	if s, ok := scalarString(obj["name_color"]); ok && s != "" {
		return "#" + strings.TrimPrefix(s, "#")
	}
	return ""
}

// rarityLabel はrarityフィールド、なければカテゴリがRarityのタグ名を返す。
func rarityLabel(obj map[string]any) string {
	if s, ok := scalarString(obj["rarity"]); ok && s != "" {
		return s
	}
	tags, _ := obj["tags"].([]any)
	for _, t := range tags {
		tag, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if category, _ := scalarString(tag["category"]); category != "Rarity" {
			continue
		}
		if name := firstString(tag, []string{"localized_tag_name", "name"}); name != "" {
			return name
		}
	}
	return ""
}

// inspectLink は直接のリンク、なければactionsのゲーム起動リンクからプレースホルダを埋めて返す。
func inspectLink(obj map[string]any, steamID, assetID string) string {
	if link := firstString(obj, inspectLinkKeys); link != "" {
		return link
	}
	actions, _ := obj["actions"].([]any)
	for _, a := range actions {
		action, ok := a.(map[string]any)
		if !ok {
			continue
		}
		link, _ := scalarString(action["link"])
		if !strings.Contains(link, "steam://rungame/730") {
			continue
		}
		link = strings.ReplaceAll(link, "%owner_steamid%", steamID)
		link = strings.ReplaceAll(link, "%assetid%", assetID)
		return link
	}
	return ""
}

// floatInfo はfloatオブジェクト、float数値、またはルートのfloatvalueを解釈する。
func floatInfo(obj map[string]any) *model.FloatInfo {
	switch f := obj["float"].(type) {
	case map[string]any:
		value, ok := number(f["floatvalue"])
		if !ok {
			return nil
		}
		info := &model.FloatInfo{
			FloatValue: value,
			PaintSeed:  intValue(f["paintseed"]),
			PaintIndex: intValue(f["paintindex"]),
			Stickers:   stickers(f["stickers"]),
		}
		info.Phase, _ = scalarString(f["phase"])
		info.ScreenshotURL, _ = scalarString(f["screenshot_url"])
		return info
	case nil:
	default:
		if value, ok := number(f); ok {
			return &model.FloatInfo{FloatValue: value, Stickers: []model.Sticker{}}
		}
	}
	if value, ok := number(obj["floatvalue"]); ok {
		return &model.FloatInfo{
			FloatValue: value,
			PaintSeed:  intValue(obj["paintseed"]),
			PaintIndex: intValue(obj["paintindex"]),
			Stickers:   stickers(obj["stickers"]),
		}
	}
	return nil
}

func stickers(v any) []model.Sticker {
	list, _ := v.([]any)
	out := make([]model.Sticker, 0, len(list))
	for _, s := range list {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		st := model.Sticker{Slot: intValue(m["slot"])}
		st.Name, _ = scalarString(m["name"])
		st.Image, _ = scalarString(m["image"])
		out = append(out, st)
	}
	return out
}

// number は数値または数値文字列をfloat64に変換する。NaNと無限大は受け付けない。
func number(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case numberLike:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optionalNumber(v any) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

func intValue(v any) int {
	f, ok := number(v)
	if !ok {
		return 0
	}
	return int(f)
}

package model

// InventoryItem は外部インベントリAPIのレスポンスを正規化したアイテム。
// リクエストごとに生成され、永続化されない。
type InventoryItem struct {
	AssetID     string     `json:"assetid"`
	Name        string     `json:"name"`
	Image       string     `json:"image"`
	RarityColor string     `json:"rarity_color"`
	Rarity      string     `json:"rarity,omitempty"`
	InspectLink string     `json:"inspect_link,omitempty"`
	Float       *FloatInfo `json:"float,omitempty"`
	PriceLatest *float64   `json:"pricelatest,omitempty"`
	PriceReal   *float64   `json:"pricereal,omitempty"`
	PriceAvg    *float64   `json:"priceavg,omitempty"`
	PriceMedian *float64   `json:"pricemedian,omitempty"`
}

// EffectivePrice は表示・フィルタ用の価格を返す。
// 実売価格、最新価格の順に採用し、どちらもなければ0を返す。
func (i InventoryItem) EffectivePrice() float64 {
	if i.PriceReal != nil && *i.PriceReal != 0 {
		return *i.PriceReal
	}
	if i.PriceLatest != nil {
		return *i.PriceLatest
	}
	return 0
}

// FloatInfo はインスペクトリンクから取得できるスキン固有の情報。
type FloatInfo struct {
	FloatValue    float64   `json:"floatvalue"`
	PaintSeed     int       `json:"paintseed"`
	PaintIndex    int       `json:"paintindex"`
	Phase         string    `json:"phase,omitempty"`
	Stickers      []Sticker `json:"stickers"`
	ScreenshotURL string    `json:"screenshot_url,omitempty"`
}

// Sticker はスキンに貼られたステッカー。
type Sticker struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// PricePoint は価格履歴の1サンプル。
type PricePoint struct {
	Timestamp int64   `json:"timestamp"` // UNIX秒
	Price     float64 `json:"price"`
}

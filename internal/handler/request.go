package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/skinshowcase/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーに含めるフィールド名はJSONのキーにそろえる
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// trimmer は検証前に入力の前後空白を取り除くリクエスト型が実装する。
type trimmer interface {
	trim()
}

// decodeRequest はJSONボディを読み取り、タグに従って検証する。
// 失敗時はVALIDATION_ERRORを返す。
func decodeRequest(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		return model.NewValidationError("リクエストボディを解析できません").WithCause(err)
	}
	if t, ok := dest.(trimmer); ok {
		t.trim()
	}

	if err := validate.StructCtx(r.Context(), dest); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return model.NewValidationError("入力値が不正です").WithCause(err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return model.NewValidationError("入力値が不正です", fields...).WithCause(err)
	}
	return nil
}

// hasInvalidField は検証エラーに指定フィールドが含まれるかを判定する。
func hasInvalidField(err error, field string) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == field {
			return true
		}
	}
	return false
}

// createListingRequest は出品作成リクエストのボディ。
type createListingRequest struct {
	AssetID     string `json:"assetid" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=256"`
	ImageURL    string `json:"image_url" validate:"required,max=2048"`
	RarityColor string `json:"rarity_color" validate:"required,max=16"`
}

func (req *createListingRequest) trim() {
	req.AssetID = strings.TrimSpace(req.AssetID)
	req.Name = strings.TrimSpace(req.Name)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.RarityColor = strings.TrimSpace(req.RarityColor)
}

// updateTradeURLRequest はトレードURL更新リクエストのボディ。
type updateTradeURLRequest struct {
	TradeLink string `json:"trade_link" validate:"required,url,startswith=https://steamcommunity.com/tradeoffer/new/"`
}

func (req *updateTradeURLRequest) trim() {
	req.TradeLink = strings.TrimSpace(req.TradeLink)
}

package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind_ExtractsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("list item: %w", NewAlreadyListedError("A1"))

	if got := Kind(err); got != ErrCodeConflict {
		t.Errorf("Kind() = %q, want %q", got, ErrCodeConflict)
	}
	if !IsKind(err, ErrCodeConflict) {
		t.Error("IsKind(CONFLICT) should be true")
	}
}

func TestKind_PlainErrorReturnsEmpty(t *testing.T) {
	if got := Kind(errors.New("boom")); got != "" {
		t.Errorf("Kind() = %q, want empty", got)
	}
	if IsKind(nil, ErrCodeNotFound) {
		t.Error("IsKind(nil) should be false")
	}
}

func TestAPIError_WithCause_KeepsOriginalUntouched(t *testing.T) {
	base := NewUpstreamUnavailableError("inventory")
	cause := errors.New("dial tcp: timeout")

	wrapped := base.WithCause(cause)

	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should unwrap to cause")
	}
	if base.Unwrap() != nil {
		t.Error("base error must not be mutated")
	}
	if wrapped.Code != ErrCodeUpstreamUnavailable {
		t.Errorf("Code = %q, want %q", wrapped.Code, ErrCodeUpstreamUnavailable)
	}
}

// 上流エラーの3種類はユーザーへの対処方法がそれぞれ異なる必要がある
func TestUpstreamErrors_HaveDistinctActions(t *testing.T) {
	errs := []*APIError{
		NewRateLimitedError("inventory"),
		NewAccessDeniedError(),
		NewUpstreamUnavailableError("inventory"),
	}

	seenCodes := map[string]bool{}
	seenActions := map[string]bool{}
	for _, e := range errs {
		if seenCodes[e.Code] {
			t.Errorf("duplicate code %q", e.Code)
		}
		seenCodes[e.Code] = true
		seenActions[e.Action] = true
	}
	if len(seenActions) != 3 {
		t.Errorf("actions should be distinct, got %d unique", len(seenActions))
	}
}

func TestExternalProfile_AvatarURL(t *testing.T) {
	tests := []struct {
		name   string
		photos []string
		want   string
	}{
		{"フルサイズを優先", []string{"s", "m", "f"}, "f"},
		{"2枚なら最後", []string{"s", "m"}, "m"},
		{"なしなら空", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ExternalProfile{Photos: tt.photos}
			if got := p.AvatarURL(); got != tt.want {
				t.Errorf("AvatarURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInventoryItem_EffectivePrice(t *testing.T) {
	realPrice, latest, zero := 12.5, 10.0, 0.0

	tests := []struct {
		name string
		item InventoryItem
		want float64
	}{
		{"実売価格を優先", InventoryItem{PriceReal: &realPrice, PriceLatest: &latest}, 12.5},
		{"実売価格がなければ最新価格", InventoryItem{PriceLatest: &latest}, 10},
		{"実売価格が0なら最新価格", InventoryItem{PriceReal: &zero, PriceLatest: &latest}, 10},
		{"価格なしは0", InventoryItem{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.EffectivePrice(); got != tt.want {
				t.Errorf("EffectivePrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

package auth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/upstream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultSteamOpenIDURL = "https://steamcommunity.com/openid/login"
	defaultSteamAPIURL    = "https://api.steampowered.com"

	openIDNamespace        = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

	steamSource = "Steam"
)

// ErrInvalidAssertion はSteamからのOpenIDアサーションが検証できなかったことを示す。
var ErrInvalidAssertion = errors.New("invalid openid assertion")

// claimedIDPattern はSteamのclaimed_idからSteamID64を取り出す。
var claimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d{17})$`)

// SteamOpenIDConfig はSteam OpenIDプロバイダーの設定。
type SteamOpenIDConfig struct {
	APIKey    string
	ReturnURL string // コールバックURL（BASE_URL + /api/auth/steam/return）
	Realm     string // 通常はBASE_URL

	// テスト用にオーバーライド可能なURL
	OpenIDURL string
	APIURL    string
}

// SteamOpenIDProvider はSteam OpenID 2.0による認証を提供する。
type SteamOpenIDProvider struct {
	config SteamOpenIDConfig
	client *http.Client
}

// NewSteamOpenIDProvider はSteamOpenIDProviderを生成する。
// clientにはタイムアウト設定済みのHTTPクライアントを渡す。
func NewSteamOpenIDProvider(config SteamOpenIDConfig, client *http.Client) *SteamOpenIDProvider {
	if config.OpenIDURL == "" {
		config.OpenIDURL = defaultSteamOpenIDURL
	}
	if config.APIURL == "" {
		config.APIURL = defaultSteamAPIURL
	}
	config.APIURL = strings.TrimSuffix(config.APIURL, "/")
	if client == nil {
		client = http.DefaultClient
	}
	return &SteamOpenIDProvider{config: config, client: client}
}

// returnTo はstateを埋め込んだreturn_toを返す。
func (p *SteamOpenIDProvider) returnTo(state string) string {
	if state == "" {
		return p.config.ReturnURL
	}
	return p.config.ReturnURL + "?" + url.Values{"state": {state}}.Encode()
}

// GetLoginURL はSteamのログインURLを生成する。
// stateはreturn_toのクエリに埋め込まれ、コールバックでそのまま戻ってくる。
func (p *SteamOpenIDProvider) GetLoginURL(state string) string {
	params := url.Values{
		"openid.ns":         {openIDNamespace},
		"openid.mode":       {"checkid_setup"},
		"openid.return_to":  {p.returnTo(state)},
		"openid.realm":      {p.config.Realm},
		"openid.identity":   {openIDIdentifierSelect},
		"openid.claimed_id": {openIDIdentifierSelect},
	}
	return p.config.OpenIDURL + "?" + params.Encode()
}

// Verify はコールバックのパラメータを検証し、Steamのプロフィールを返す。
// 署名済みパラメータをcheck_authenticationでSteamに照会し、is_valid:trueの場合のみ成功する。
func (p *SteamOpenIDProvider) Verify(ctx context.Context, params url.Values) (*model.ExternalProfile, error) {
	if params.Get("openid.mode") != "id_res" {
		return nil, fmt.Errorf("%w: unexpected mode %q", ErrInvalidAssertion, params.Get("openid.mode"))
	}
	if !p.matchesReturnURL(params.Get("openid.return_to")) {
		return nil, fmt.Errorf("%w: return_to mismatch", ErrInvalidAssertion)
	}
	if ep := params.Get("openid.op_endpoint"); ep != "" && ep != p.config.OpenIDURL {
		return nil, fmt.Errorf("%w: unexpected op_endpoint %q", ErrInvalidAssertion, ep)
	}

	m := claimedIDPattern.FindStringSubmatch(params.Get("openid.claimed_id"))
	if m == nil {
		return nil, fmt.Errorf("%w: malformed claimed_id", ErrInvalidAssertion)
	}
	steamID := m[1]

	valid, err := p.checkAuthentication(ctx, params)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("%w: steam rejected the assertion", ErrInvalidAssertion)
	}

	return p.fetchProfile(ctx, steamID)
}

// matchesReturnURL はreturn_toのクエリを除いた部分が設定値と一致するかを判定する。
func (p *SteamOpenIDProvider) matchesReturnURL(raw string) bool {
	got, err := url.Parse(raw)
	if err != nil {
		return false
	}
	want, err := url.Parse(p.config.ReturnURL)
	if err != nil {
		return false
	}
	return got.Scheme == want.Scheme && got.Host == want.Host && got.Path == want.Path
}

// checkAuthentication は受け取ったパラメータをmodeだけ差し替えてSteamに送り返す。
func (p *SteamOpenIDProvider) checkAuthentication(ctx context.Context, params url.Values) (bool, error) {
	form := url.Values{}
	for k, vs := range params {
		if strings.HasPrefix(k, "openid.") {
			form[k] = vs
		}
	}
	form.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.OpenIDURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create check_authentication request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, upstream.WrapTransportError(steamSource, err)
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(steamSource, resp.Body)
	if err != nil {
		return false, err
	}
	if err := upstream.ErrorForStatus(steamSource, resp.StatusCode); err != nil {
		return false, err
	}

	return parseKeyValueForm(body)["is_valid"] == "true", nil
}

// parseKeyValueForm はOpenIDのKey-Value形式（"key:value\n"の並び）を解析する。
func parseKeyValueForm(body []byte) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// playerSummariesResponse はGetPlayerSummaries/v2のレスポンス。
type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			SteamID      string `json:"steamid"`
			PersonaName  string `json:"personaname"`
			Avatar       string `json:"avatar"`
			AvatarMedium string `json:"avatarmedium"`
			AvatarFull   string `json:"avatarfull"`
		} `json:"players"`
	} `json:"response"`
}

// fetchProfile はGetPlayerSummariesでプロフィールを取得する。
// Photosは小さい順（avatar, avatarmedium, avatarfull）に並べる。
func (p *SteamOpenIDProvider) fetchProfile(ctx context.Context, steamID string) (*model.ExternalProfile, error) {
	q := url.Values{"key": {p.config.APIKey}, "steamids": {steamID}}
	endpoint := p.config.APIURL + "/ISteamUser/GetPlayerSummaries/v2/?" + q.Encode()

	body, _, err := upstream.Get(ctx, p.client, steamSource, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var summaries playerSummariesResponse
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, model.NewUpstreamUnavailableError(steamSource).WithCause(fmt.Errorf("failed to parse player summaries: %w", err))
	}

	for _, player := range summaries.Response.Players {
		if player.SteamID != steamID {
			continue
		}
		profile := &model.ExternalProfile{
			SubjectID:   steamID,
			DisplayName: player.PersonaName,
		}
		for _, photo := range []string{player.Avatar, player.AvatarMedium, player.AvatarFull} {
			if photo != "" {
				profile.Photos = append(profile.Photos, photo)
			}
		}
		return profile, nil
	}

	return nil, model.NewUpstreamUnavailableError(steamSource).WithCause(fmt.Errorf("player %s not found in summaries", steamID))
}

// compile-time interface check
var _ IdentityProvider = (*SteamOpenIDProvider)(nil)

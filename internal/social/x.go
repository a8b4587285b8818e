// Package social はソーシャルチャネルへの記事告知を提供する。
// X（旧Twitter）API v2とTelegram Bot APIの2種類の投稿先を持つ。
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hitoshi/newsdesk/internal/notify"
)

// DefaultXEndpoint はX API v2の投稿エンドポイント。
const DefaultXEndpoint = "https://api.twitter.com/2/tweets"

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// XPoster はX API v2に投稿するnotify.SocialPosterの実装。
// 認証はOAuth 2.0ユーザーコンテキストのアクセストークンで行う。
type XPoster struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

var _ notify.SocialPoster = (*XPoster)(nil)

// NewXPoster はXPosterを生成する。endpointが空ならDefaultXEndpointを使う。
// httpClientには宛先検証済みのクライアントを渡す。accessTokenは
// tweet.writeスコープを持つユーザーコンテキストのトークンでなければならず、
// アプリ専用のBearerトークンでは投稿できない。
func NewXPoster(httpClient *http.Client, endpoint, accessToken string, logger *slog.Logger) *XPoster {
	if endpoint == "" {
		endpoint = DefaultXEndpoint
	}
	return &XPoster{
		httpClient: authorizedClient(httpClient, accessToken),
		logger:     logger,
		endpoint:   strings.TrimRight(endpoint, "/"),
	}
}

// authorizedClient はbaseの設定を引き継ぎ、Authorizationヘッダーを付けるクライアントを返す。
// baseは変更しない。
func authorizedClient(base *http.Client, accessToken string) *http.Client {
	client := *base
	client.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		Base:   base.Transport,
	}
	return &client
}

type xCreateRequest struct {
	Text string `json:"text"`
}

type xCreateResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type xDeleteResponse struct {
	Data struct {
		Deleted bool `json:"deleted"`
	} `json:"data"`
}

// Post は投稿を作成し、投稿IDを返す。APIは201 Createdを返す。
func (p *XPoster) Post(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(xCreateRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("投稿リクエストの生成に失敗しました: %w", err)
	}

	var result xCreateResponse
	if err := p.do(ctx, http.MethodPost, p.endpoint, payload, http.StatusCreated, &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("X APIのレスポンスに投稿IDが含まれていません")
	}
	return result.Data.ID, nil
}

// Delete は投稿IDで投稿を削除する。
func (p *XPoster) Delete(ctx context.Context, postID string) error {
	if postID == "" {
		return fmt.Errorf("投稿IDが空です")
	}

	var result xDeleteResponse
	if err := p.do(ctx, http.MethodDelete, p.endpoint+"/"+url.PathEscape(postID), nil, http.StatusOK, &result); err != nil {
		return err
	}
	if !result.Data.Deleted {
		return fmt.Errorf("X APIが投稿 %s を削除しませんでした", postID)
	}
	return nil
}

func (p *XPoster) do(ctx context.Context, method, target string, payload []byte, wantStatus int, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Newsdesk/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("X APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != wantStatus {
		p.logger.Error("X APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(respBody)),
		)
		return fmt.Errorf("X APIがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

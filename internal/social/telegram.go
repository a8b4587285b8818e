package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/newsdesk/internal/notify"
)

// telegramAPI は*tgbotapi.BotAPIのうち利用するメソッド。
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramPoster はTelegramチャンネルに投稿するnotify.SocialPosterの実装。
// 投稿IDはチャンネル内のメッセージIDを10進文字列にしたもの。
type TelegramPoster struct {
	api    telegramAPI
	chatID int64
	logger *slog.Logger
}

var _ notify.SocialPoster = (*TelegramPoster)(nil)

// NewTelegramPoster はボットトークンで認証してTelegramPosterを生成する。
// Bot APIへの各リクエストはtimeoutで打ち切られる。
func NewTelegramPoster(token string, chatID int64, timeout time.Duration, logger *slog.Logger) (*TelegramPoster, error) {
	return dialTelegram(token, tgbotapi.APIEndpoint, chatID, timeout, logger)
}

func dialTelegram(token, endpoint string, chatID int64, timeout time.Duration, logger *slog.Logger) (*TelegramPoster, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegramボットを認証しました", slog.String("bot", api.Self.UserName))
	return newTelegramPoster(api, chatID, logger), nil
}

func newTelegramPoster(api telegramAPI, chatID int64, logger *slog.Logger) *TelegramPoster {
	return &TelegramPoster{api: api, chatID: chatID, logger: logger}
}

// Post はチャンネルにメッセージを送信する。
// Bot APIはcontextを受け取らないため、ctxは呼び出し前の確認にのみ使い、
// 送信の打ち切りはHTTPクライアントのタイムアウトに任せる。
func (p *TelegramPoster) Post(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := tgbotapi.NewMessage(p.chatID, text)

	sent, err := p.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("Telegramへの投稿に失敗しました: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Delete はチャンネルのメッセージを削除する。
func (p *TelegramPoster) Delete(ctx context.Context, postID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	messageID, err := strconv.Atoi(postID)
	if err != nil {
		return fmt.Errorf("不正なTelegramメッセージIDです: %q", postID)
	}

	resp, err := p.api.Request(tgbotapi.NewDeleteMessage(p.chatID, messageID))
	if err != nil {
		return fmt.Errorf("Telegramメッセージの削除に失敗しました: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("Telegramがメッセージ %d を削除しませんでした: %s", messageID, resp.Description)
	}
	return nil
}

// Package publish delivers formatted messages to a Telegram channel.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Channel is the delivery contract. Text and photo sends fail independently.
type Channel interface {
	SendText(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID, photoURL, caption string) error
}

const (
	DefaultAPIBase   = "https://api.telegram.org"
	DefaultPerMinute = 20
	maxRetryAfter    = 60 * time.Second
)

var ErrTokenNotSet = errors.New("telegram bot token not set")

type TelegramConfig struct {
	Token     string
	APIBase   string
	Timeout   time.Duration
	PerMinute int
}

// Telegram sends through the Bot API client. getMe is not called at
// construction so a dry config check never touches the network.
type Telegram struct {
	api     tgbotapi.BotAPI
	hc      *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewTelegram(cfg TelegramConfig, log *slog.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrTokenNotSet
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultPerMinute
	}
	if log == nil {
		log = slog.Default()
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	api := tgbotapi.BotAPI{Token: cfg.Token, Client: hc, Buffer: 1}
	api.SetAPIEndpoint(strings.TrimRight(cfg.APIBase, "/") + "/bot%s/%s")

	return &Telegram{
		api:     api,
		hc:      hc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1),
		log:     log.With("component", "telegram"),
	}, nil
}

// chatFor maps a numeric id or an @channel name onto the request target.
func chatFor(chatID string) tgbotapi.BaseChat {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}
	}
	return tgbotapi.BaseChat{ChannelUsername: chatID}
}

func (t *Telegram) SendText(ctx context.Context, chatID, text string) error {
	return t.call(ctx, "sendMessage", tgbotapi.MessageConfig{
		BaseChat:  chatFor(chatID),
		Text:      text,
		ParseMode: tgbotapi.ModeHTML,
	})
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID, photoURL, caption string) error {
	return t.call(ctx, "sendPhoto", tgbotapi.PhotoConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: chatFor(chatID),
			File:     tgbotapi.FileURL(photoURL),
		},
		Caption:   caption,
		ParseMode: tgbotapi.ModeHTML,
	})
}

// call sends one request. A flood-control reply is honoured once.
func (t *Telegram) call(ctx context.Context, method string, c tgbotapi.Chattable) error {
	err := t.do(ctx, c)

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait > maxRetryAfter {
			return fmt.Errorf("telegram %s: %w", method, err)
		}
		t.log.Warn("flood control, retrying", "method", method, "retry_after", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		err = t.do(ctx, c)
	}
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return nil
}

func (t *Telegram) do(ctx context.Context, c tgbotapi.Chattable) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	// the client API has no context parameter; bind ctx per request
	api := t.api
	api.Client = ctxClient{ctx: ctx, hc: t.hc}

	_, err := api.Request(c)
	var apiErr *tgbotapi.Error
	if err != nil && !errors.As(err, &apiErr) {
		// transport errors carry the URL, which embeds the token
		return redact(err, t.api.Token)
	}
	return err
}

type ctxClient struct {
	ctx context.Context
	hc  *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.hc.Do(req.WithContext(c.ctx))
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>")}
}

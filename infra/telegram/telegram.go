// Package telegram delivers pickup offers to drivers through a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/resqmeals/gateway/core/factory"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/logger"
	"github.com/resqmeals/gateway/core/notify"
	infralog "github.com/resqmeals/gateway/infra/logger"
)

// Channel is the notifier name used in configuration, in driver channel
// lists and in metrics.
const Channel = "telegram"

// Config holds the bot settings.
type Config struct {
	Token          string `json:"token"`
	APIEndpoint    string `json:"api_endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.APIEndpoint == "" {
		c.APIEndpoint = tgbotapi.APIEndpoint
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Notifier sends offers to drivers that list the telegram channel and
// carry a chat id.
type Notifier struct {
	api    *tgbotapi.BotAPI
	logger logger.Logger
}

// New authorizes the bot against the Telegram API.
func New(cfg Config) (*Notifier, error) {
	cfg.SetDefaults()
	if cfg.Token == "" {
		return nil, fault.Newf(fault.ErrConfiguration, "telegram", "token is required")
	}
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, client)
	if err != nil {
		return nil, fault.New(fault.ErrTransport, "telegram authorize", err)
	}
	log := infralog.New("telegram")
	log.Infof("authorized on account %s", api.Self.UserName)
	return &Notifier{api: api, logger: log}, nil
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() string { return Channel }

// Notify sends the driver message with an accept button.
func (n *Notifier) Notify(ctx context.Context, offer notify.Offer) error {
	d := offer.Driver
	if !d.HasChannel(Channel) || d.TelegramChatID == 0 {
		return fmt.Errorf("driver %s: %w", offer.DriverID, notify.ErrUnreachable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(d.TelegramChatID, Text(offer))
	if offer.AcceptLink != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Accept pickup", offer.AcceptLink)),
		)
	}
	if _, err := n.api.Send(msg); err != nil {
		return fault.New(fault.ErrTransport, "telegram send", err)
	}
	n.logger.Infof("sent offer %s to driver %s", offer.OfferID, offer.DriverID)
	return nil
}

// Text is the message body. The accept link is appended when the drafted
// message lacks it.
func Text(offer notify.Offer) string {
	text := strings.TrimSpace(offer.Message)
	if offer.AcceptLink != "" && !strings.Contains(text, offer.AcceptLink) {
		text += "\n" + offer.AcceptLink
	}
	return text
}

func init() {
	_ = notify.Register(Channel, func(conf map[string]any) (notify.Notifier, error) {
		var cfg Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

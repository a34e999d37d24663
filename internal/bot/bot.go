package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kharcha/internal/log"
)

// Bot is the Telegram transport: it pulls updates over long polling and
// feeds message text through the router.
type Bot struct {
	api           *tgbotapi.BotAPI
	router        *Router
	updateTimeout int
	logger        *log.Logger
}

func New(token string, updateTimeout int, router *Router, logger *log.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	return &Bot{
		api:           api,
		router:        router,
		updateTimeout: updateTimeout,
		logger:        logger.WithComponent(log.ComponentBot),
	}, nil
}

// Run polls for updates until ctx is cancelled. Each message is handled
// inline; Telegram long polling already batches, so per-message goroutines
// would only reorder replies.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.updateTimeout

	updates := b.api.GetUpdatesChan(u)
	b.logger.InfoContext(ctx, "bot started",
		log.FieldOperation, log.OpStartup,
		"username", b.api.Self.UserName,
	)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.InfoContext(ctx, "bot stopped", log.FieldOperation, log.OpShutdown)
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	resp := b.router.Handle(ctx, msg.Chat.ID, displayName(msg.Chat), msg.Text)

	reply := tgbotapi.NewMessage(msg.Chat.ID, resp.Message)
	if resp.ParseMode != "" {
		reply.ParseMode = resp.ParseMode
	}
	if _, err := b.api.Send(reply); err != nil {
		b.logger.ErrorContext(ctx, "failed to send reply",
			log.FieldUserID, msg.Chat.ID,
			log.FieldError, err,
		)
	}
}

func displayName(chat *tgbotapi.Chat) string {
	if chat == nil {
		return ""
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}

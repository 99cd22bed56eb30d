package channel

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// TelegramProvider sends through the Telegram Bot API. The sender
// identity is the bot token; bots are cached per token because building
// one is not free.
type TelegramProvider struct {
	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func NewTelegramProvider() *TelegramProvider {
	return &TelegramProvider{bots: make(map[string]*tele.Bot)}
}

func (p *TelegramProvider) Name() string { return "telegram" }

func (p *TelegramProvider) Send(ctx context.Context, msg Message) (Receipt, error) {
	chatID, err := strconv.ParseInt(msg.Recipient, 10, 64)
	if err != nil {
		return Receipt{}, &TransportError{StatusCode: http.StatusBadRequest, Message: "recipient is not a telegram chat id"}
	}

	bot, err := p.bot(msg.SenderIdentity)
	if err != nil {
		return Receipt{}, &TransportError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}

	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}

	sent, err := bot.Send(tele.ChatID(chatID), text)
	if err != nil {
		var apiErr *tele.Error
		if errors.As(err, &apiErr) {
			return Receipt{}, &TransportError{StatusCode: apiErr.Code, Message: apiErr.Description}
		}
		return Receipt{}, &TransportError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}
	return Receipt{ProviderID: strconv.Itoa(sent.ID)}, nil
}

func (p *TelegramProvider) bot(token string) (*tele.Bot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bot, ok := p.bots[token]; ok {
		return bot, nil
	}
	// Offline skips the getMe probe; a bad token shows up on first send.
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	p.bots[token] = bot
	return bot, nil
}

package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/telegram"
)

// Min interval between any two Telegram messages to the same chat to avoid 429 Too Many Requests (~30/min limit).
const telegramSendInterval = 2 * time.Second

const telegramQueueSize = 100

var (
	errNotifierStopped = errors.New("notifier stopped")
	errQueueFull       = errors.New("message queue is full")
)

// chatSender is the part of tgbotapi.BotAPI the notifier needs.
type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type messageType int

const (
	messageTypeSurebet messageType = iota
	messageTypeTest
)

func (t messageType) String() string {
	switch t {
	case messageTypeSurebet:
		return "surebet"
	case messageTypeTest:
		return "test"
	}
	return "unknown"
}

type queuedMessage struct {
	msgType  messageType
	text     string
	match    string
	foundAt  time.Time
	queuedAt time.Time
}

// TelegramNotifier sends surebet alerts to a Telegram chat from a buffered queue.
type TelegramNotifier struct {
	bot      chatSender
	chatID   int64
	interval time.Duration

	mu       sync.Mutex
	lastSend time.Time

	queue     chan queuedMessage
	queueDone chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// clearCh: send a channel here; messageSender drains queue then replies with dropped count
	clearCh chan chan int
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier connects to the Bot API and starts the sender goroutine.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	n := newTelegramNotifier(bot, chatID, telegramSendInterval)
	slog.Info("Telegram notifier initialized", "bot", bot.Self.UserName, "chat_id", chatID)
	return n, nil
}

func newTelegramNotifier(bot chatSender, chatID int64, interval time.Duration) *TelegramNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &TelegramNotifier{
		bot:       bot,
		chatID:    chatID,
		interval:  interval,
		queue:     make(chan queuedMessage, telegramQueueSize),
		queueDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		clearCh:   make(chan chan int),
	}
	go n.messageSender()
	return n
}

// QueueLen returns current number of messages in the send queue.
func (n *TelegramNotifier) QueueLen() int {
	if n == nil {
		return 0
	}
	return len(n.queue)
}

// ClearQueue drains the notification queue without sending. Pending alerts are dropped.
// Returns the number of messages that were dropped. Safe to call if notifier is nil.
func (n *TelegramNotifier) ClearQueue() int {
	if n == nil {
		return 0
	}
	respCh := make(chan int)
	select {
	case <-n.ctx.Done():
		return 0
	case n.clearCh <- respCh:
		return <-respCh
	}
}

// messageSender runs in background and sends queued messages with proper intervals
func (n *TelegramNotifier) messageSender() {
	defer close(n.queueDone)

	for {
		select {
		case <-n.ctx.Done():
			// Drain remaining messages before exit
			for {
				select {
				case msg := <-n.queue:
					n.send(msg)
				default:
					return
				}
			}
		case respCh := <-n.clearCh:
			drained := 0
		drain:
			for {
				select {
				case <-n.queue:
					drained++
				default:
					break drain
				}
			}
			if drained > 0 {
				slog.Info("Telegram notifier: queue cleared", "dropped_messages", drained)
			}
			respCh <- drained
		case msg := <-n.queue:
			n.waitInterval()
			n.send(msg)
		}
	}
}

// waitInterval sleeps until the minimum spacing since the last send has passed.
func (n *TelegramNotifier) waitInterval() {
	n.mu.Lock()
	elapsed := time.Since(n.lastSend)
	n.mu.Unlock()
	if elapsed >= n.interval {
		return
	}
	select {
	case <-n.ctx.Done():
	case <-time.After(n.interval - elapsed):
	}
}

func (n *TelegramNotifier) send(msg queuedMessage) {
	tgMsg := tgbotapi.NewMessage(n.chatID, msg.text)
	tgMsg.ParseMode = tgbotapi.ModeMarkdownV2

	n.mu.Lock()
	n.lastSend = time.Now()
	n.mu.Unlock()

	sendStart := time.Now()
	_, err := n.bot.Send(tgMsg)

	args := []any{
		"type", msg.msgType.String(),
		"send_duration", time.Since(sendStart),
		"total_duration", time.Since(msg.queuedAt),
		"queue_length", len(n.queue),
	}
	if msg.msgType == messageTypeSurebet {
		args = append(args, "match", msg.match, "delay_since_found_sec", time.Since(msg.foundAt).Seconds())
	}
	if err != nil {
		slog.Error("Telegram send: failed", append(args, "error", err)...)
		return
	}
	slog.Info("Telegram send: success", args...)
}

func (n *TelegramNotifier) enqueue(ctx context.Context, msg queuedMessage) error {
	if n == nil {
		return fmt.Errorf("telegram notifier not initialized")
	}
	msg.queuedAt = time.Now()

	select {
	case <-n.ctx.Done():
		return errNotifierStopped
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case n.queue <- msg:
		return nil
	default:
		slog.Warn("Telegram message queue is full, dropping message", "type", msg.msgType.String(), "match", msg.match)
		return errQueueFull
	}
}

// SendSurebetAlert queues an alert for a surebet (non-blocking)
func (n *TelegramNotifier) SendSurebetAlert(ctx context.Context, arb *models.Arbitrage, threshold float64) error {
	if arb == nil {
		return fmt.Errorf("nil surebet")
	}
	return n.enqueue(ctx, queuedMessage{
		msgType: messageTypeSurebet,
		text:    formatSurebetAlert(arb, threshold),
		match:   arb.MatchName,
		foundAt: arb.FoundAt,
	})
}

// SendTestAlert queues a test message (non-blocking)
func (n *TelegramNotifier) SendTestAlert(ctx context.Context, message string) error {
	text := fmt.Sprintf("🧪 *Test Alert*\n\n%s\n\n_%s_",
		telegram.EscapeMarkdown(message),
		telegram.EscapeMarkdown("Time: "+time.Now().UTC().Format("2006-01-02 15:04:05 UTC")))
	return n.enqueue(ctx, queuedMessage{msgType: messageTypeTest, text: text})
}

// Close stops accepting messages and waits until queued ones are sent.
func (n *TelegramNotifier) Close() {
	if n == nil {
		return
	}
	n.closeOnce.Do(n.cancel)
	<-n.queueDone
}

// formatSurebetAlert renders a surebet as a MarkdownV2 Telegram message.
func formatSurebetAlert(arb *models.Arbitrage, threshold float64) string {
	var b strings.Builder

	title := fmt.Sprintf("Surebet +%.2f%%", arb.ProfitPercent)
	if threshold > 0 {
		title += fmt.Sprintf(" (%.1f%%+)", threshold)
	}
	b.WriteString("💰 *" + telegram.EscapeMarkdown(title) + "*\n\n")
	b.WriteString("*" + telegram.EscapeMarkdown(arb.MatchName) + "*\n")

	market := telegram.FormatLabel(arb.EventType) + " | " + telegram.FormatLabel(arb.Market)
	if arb.Parameter != "" {
		market += " (" + arb.Parameter + ")"
	}
	b.WriteString("📌 " + telegram.EscapeMarkdown(market) + "\n")
	b.WriteString("🏦 " + telegram.EscapeMarkdown(strings.Join(arb.Bookmakers(), ", ")) + "\n\n")

	for _, bet := range arb.Bets {
		line := fmt.Sprintf("%s @ %.2f (%s): stake %s → %s",
			telegram.FormatLabel(bet.Outcome), bet.Odd, bet.Bookmaker, telegram.FormatAmount(bet.Stake), telegram.FormatAmount(bet.Return))
		b.WriteString("• " + telegram.EscapeMarkdown(line) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(telegram.EscapeMarkdown(fmt.Sprintf("Total stake: %s | Guaranteed: %s | Profit: %s",
		telegram.FormatAmount(arb.TotalStake), telegram.FormatAmount(arb.GuaranteedReturn), telegram.FormatAmount(arb.NetProfit))) + "\n")
	if !arb.StartTime.IsZero() {
		b.WriteString("🕐 " + telegram.EscapeMarkdown("Kick-off: "+telegram.FormatTime(arb.StartTime)) + "\n")
	}
	if arb.Sport != "" {
		b.WriteString("🏆 " + telegram.EscapeMarkdown(arb.Sport) + "\n")
	}
	return b.String()
}

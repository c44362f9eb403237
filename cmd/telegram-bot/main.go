package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vodeneev/surebet/internal/pkg/config"
	"github.com/Vodeneev/surebet/internal/pkg/models"
	"github.com/Vodeneev/surebet/internal/pkg/surebet"
	"github.com/Vodeneev/surebet/internal/pkg/telegram"
)

const (
	defaultCalculatorURL = "http://localhost:8080"
	defaultLimit         = 5
	maxLimit             = 50
	telegramMessageLimit = 4000
)

type BotConfig struct {
	Token          string
	CalculatorURL  string
	UpdateTimeout  int
	AllowedUserIDs []int64 // Optional: restrict access to specific users
}

// sender is the part of tgbotapi.BotAPI the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func main() {
	var token string
	var calculatorURL string
	var allowedUsers string

	flag.StringVar(&token, "token", "", "Telegram bot token (required, or set TELEGRAM_BOT_TOKEN env var)")
	flag.StringVar(&calculatorURL, "calculator-url", defaultCalculatorURL, "Calculator service URL")
	flag.StringVar(&allowedUsers, "allowed-users", "", "Comma-separated list of allowed user IDs (optional)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}

	if token == "" {
		token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if token == "" {
		log.Fatal("Telegram bot token is required. Set -token flag or TELEGRAM_BOT_TOKEN env var")
	}

	if calculatorURL == defaultCalculatorURL {
		if envURL := os.Getenv("CALCULATOR_URL"); envURL != "" {
			calculatorURL = envURL
		}
	}

	cfg := BotConfig{
		Token:          token,
		CalculatorURL:  strings.TrimSuffix(calculatorURL, "/"),
		UpdateTimeout:  60,
		AllowedUserIDs: parseUserIDs(allowedUsers),
	}

	log.Printf("Starting Telegram bot...")
	log.Printf("Calculator URL: %s", cfg.CalculatorURL)

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	bot.Debug = false
	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.UpdateTimeout

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 30 * time.Second}
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			log.Println("Telegram bot stopped")
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if !isAllowed(cfg.AllowedUserIDs, update.Message.From) {
				send(bot, tgbotapi.NewMessage(update.Message.Chat.ID, "Access denied. You are not authorized to use this bot."))
				continue
			}
			handleMessage(ctx, bot, client, update.Message, cfg)
		}
	}
}

func parseUserIDs(s string) []int64 {
	var ids []int64
	for _, idStr := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func isAllowed(allowed []int64, from *tgbotapi.User) bool {
	if len(allowed) == 0 {
		return true
	}
	if from == nil {
		return false
	}
	for _, id := range allowed {
		if from.ID == id {
			return true
		}
	}
	return false
}

func send(bot sender, msg tgbotapi.Chattable) {
	if _, err := bot.Send(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func handleMessage(ctx context.Context, bot sender, client *http.Client, message *tgbotapi.Message, cfg BotConfig) {
	parts := strings.Fields(strings.TrimSpace(message.Text))
	if len(parts) == 0 {
		return
	}
	// "/top 10" and "top 10" are the same request
	command := strings.TrimPrefix(strings.ToLower(parts[0]), "/")
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	chatID := message.Chat.ID

	switch command {
	case "start", "help":
		sendMarkdown(bot, chatID, helpText)
	case "calc":
		sendMarkdown(bot, chatID, calcReply(parts[1:]))
	case "top":
		fetchAndSendSurebets(ctx, bot, client, chatID, cfg, parseLimit(parts), "")
	case "live":
		fetchAndSendSurebets(ctx, bot, client, chatID, cfg, parseLimit(parts), "live")
	case "upcoming":
		fetchAndSendSurebets(ctx, bot, client, chatID, cfg, parseLimit(parts), "upcoming")
	default:
		if strings.HasPrefix(parts[0], "/") {
			send(bot, tgbotapi.NewMessage(chatID, "Unknown command. Use /help to see available commands."))
			return
		}
		sendMarkdown(bot, chatID, helpText)
	}
}

func parseLimit(parts []string) int {
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 && n <= maxLimit {
			return n
		}
	}
	return defaultLimit
}

const helpText = `🤖 *Surebet Calculator Bot*

*Available Commands:*

/calc \<stake\> \<odd1\> \<odd2\> \[odd3 \.\.\.\] \- Split a stake across outcomes
  Example: /calc 100000 2\.10 2\.05

/top \[limit\] \- Get top surebets across bookmakers
  Example: /top 10

/live \[limit\] \- Get top surebets for live matches

/upcoming \[limit\] \- Get top surebets for upcoming matches

/help \- Show this help message

_Limit must be between 1 and 50\. Default is 5\._`

func sendMarkdown(bot sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	send(bot, msg)
}

// parseCalcArgs reads "<stake> <odd1> <odd2> ...". Decimal commas are accepted.
func parseCalcArgs(args []string) (float64, []float64, error) {
	if len(args) < 3 {
		return 0, nil, fmt.Errorf("usage: /calc <stake> <odd1> <odd2> [odd3 ...]")
	}
	nums := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.ReplaceAll(a, ",", "."), 64)
		if err != nil {
			return 0, nil, fmt.Errorf("not a number: %q", a)
		}
		nums[i] = v
	}
	return nums[0], nums[1:], nil
}

func calcReply(args []string) string {
	stake, odds, err := parseCalcArgs(args)
	if err != nil {
		return "❌ " + telegram.EscapeMarkdown(err.Error())
	}
	res, err := surebet.Compute(odds, stake)
	if err != nil {
		return "❌ " + telegram.EscapeMarkdown(err.Error())
	}
	return formatCalcResult(res)
}

func formatCalcResult(res surebet.Result) string {
	var b strings.Builder
	switch r := res.(type) {
	case surebet.NoOpportunity:
		b.WriteString("📉 *No surebet*\n")
		b.WriteString(telegram.EscapeMarkdown(fmt.Sprintf("Arbitrage index %.4f (must be below 1)", r.Index)) + "\n")
	case surebet.Surebet:
		b.WriteString("💰 *" + telegram.EscapeMarkdown(fmt.Sprintf("Surebet +%.2f%%", r.ProfitPercentage)) + "*\n")
		b.WriteString(telegram.EscapeMarkdown(fmt.Sprintf("Arbitrage index %.4f", r.Index)) + "\n\n")
		for i := range r.Odds {
			b.WriteString(telegram.EscapeMarkdown(fmt.Sprintf("%d. @ %.2f: stake %s → %s", i+1, r.Odds[i], telegram.FormatAmount(r.Stakes[i]), r.Returns[i].StringFixed(2))) + "\n")
		}
		b.WriteString("\n")
		b.WriteString(telegram.EscapeMarkdown(fmt.Sprintf("Guaranteed: %s | Profit: %s", r.GuaranteedReturn.StringFixed(2), r.NetProfit.StringFixed(2))) + "\n")
	}
	return b.String()
}

type topResponse struct {
	Surebets []models.Arbitrage `json:"surebets"`
}

func fetchSurebets(ctx context.Context, client *http.Client, cfg BotConfig, limit int, status string) ([]models.Arbitrage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", status)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.CalculatorURL+"/surebets/top?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to calculator service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errorResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err == nil && errorResp["error"] != "" {
			return nil, fmt.Errorf("%s", errorResp["error"])
		}
		return nil, fmt.Errorf("calculator service returned status %d", resp.StatusCode)
	}

	var top topResponse
	if err := json.NewDecoder(resp.Body).Decode(&top); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return top.Surebets, nil
}

func fetchAndSendSurebets(ctx context.Context, bot sender, client *http.Client, chatID int64, cfg BotConfig, limit int, status string) {
	send(bot, tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	arbs, err := fetchSurebets(ctx, client, cfg, limit, status)
	if err != nil {
		sendMarkdown(bot, chatID, "❌ "+telegram.EscapeMarkdown("Error: "+err.Error()))
		return
	}

	for _, text := range formatSurebetList(arbs, limit, status) {
		sendMarkdown(bot, chatID, text)
	}
}

// formatSurebetList renders surebets into one or more messages under Telegram's length limit.
func formatSurebetList(arbs []models.Arbitrage, limit int, status string) []string {
	statusText := ""
	switch status {
	case "live":
		statusText = " (Live)"
	case "upcoming":
		statusText = " (Upcoming)"
	}

	if len(arbs) == 0 {
		return []string{telegram.EscapeMarkdown(fmt.Sprintf("📊 No surebets found%s.", statusText))}
	}
	if len(arbs) > limit {
		arbs = arbs[:limit]
	}

	header := "📊 *" + telegram.EscapeMarkdown(fmt.Sprintf("Top %d Surebets%s", len(arbs), statusText)) + "*\n\n"
	var messages []string
	var b strings.Builder
	b.WriteString(header)

	for i, a := range arbs {
		market := telegram.FormatLabel(a.EventType) + " | " + telegram.FormatLabel(a.Market)
		if a.Parameter != "" {
			market += " (" + a.Parameter + ")"
		}

		entry := fmt.Sprintf("*%s*\n", telegram.EscapeMarkdown(fmt.Sprintf("%d. %s", i+1, a.MatchName)))
		entry += "📌 " + telegram.EscapeMarkdown(market) + "\n"
		entry += "📈 " + telegram.EscapeMarkdown(fmt.Sprintf("Profit: %.2f%%", a.ProfitPercent)) + "\n"
		for _, bet := range a.Bets {
			entry += "💰 " + telegram.EscapeMarkdown(fmt.Sprintf("%s @ %.2f (%s): %s", telegram.FormatLabel(bet.Outcome), bet.Odd, bet.Bookmaker, telegram.FormatAmount(bet.Stake))) + "\n"
		}
		entry += "🕐 " + telegram.EscapeMarkdown("Start: "+telegram.FormatTime(a.StartTime)) + "\n\n"

		if b.Len()+len(entry) > telegramMessageLimit {
			messages = append(messages, b.String())
			b.Reset()
			b.WriteString(header)
		}
		b.WriteString(entry)
	}
	messages = append(messages, b.String())
	return messages
}

package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinbot-kr/coinbot/models"
)

// Per-type minimum send intervals. Repeats inside the window are dropped.
const (
	tradeInterval     = 10 * time.Second
	errorInterval     = 5 * time.Minute
	portfolioInterval = time.Hour
	statusInterval    = 2 * time.Hour
)

// sender covers the bot-api call used, so tests can fake delivery.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers bot alerts to a single chat. A zero token or chat id
// disables it; every Notify* call then succeeds as a no-op.
type Telegram struct {
	bot     sender
	chatID  int64
	enabled bool
	logger  zerolog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

var _ models.Notifier = (*Telegram)(nil)

// NewTelegram connects the notifier. Missing credentials yield a
// disabled notifier rather than an error.
func NewTelegram(token string, chatID int64) *Telegram {
	t := &Telegram{
		chatID:   chatID,
		logger:   log.With().Str("component", "notify").Logger(),
		lastSent: make(map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}

	if token == "" || chatID == 0 {
		t.logger.Warn().Msg("telegram disabled, token or chat id missing")
		return t
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		t.logger.Error().Err(err).Msg("telegram init failed, notifications disabled")
		return t
	}
	t.bot = bot
	t.enabled = true
	t.logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
	return t
}

// Enabled reports whether messages actually go out.
func (t *Telegram) Enabled() bool { return t.enabled }

// NotifyTrade reports one closed round trip.
func (t *Telegram) NotifyTrade(ctx context.Context, trade *models.TradeResult) error {
	emoji := "\U0001F4C8" // chart up
	if trade.ProfitRatio < 0 {
		emoji = "\U0001F4C9"
	}
	text := fmt.Sprintf(
		"%s <b>%s</b> closed (%s)\nprofit: %+.2f%% (%+.0f KRW)\nheld: %.1fh\nstrategy: %s",
		emoji, trade.Market, trade.ExitReason,
		trade.ProfitRatio*100, trade.ProfitAmount,
		trade.DurationHours, trade.StrategyID)
	return t.send(ctx, "trade", tradeInterval, text)
}

// NotifyError reports a component failure, throttled to avoid storms.
func (t *Telegram) NotifyError(ctx context.Context, component string, err error) error {
	text := fmt.Sprintf("⚠️ <b>%s error</b>\n%v", component, err)
	return t.send(ctx, "error:"+component, errorInterval, text)
}

// NotifyText sends a free-form message with the base throttle.
func (t *Telegram) NotifyText(ctx context.Context, text string) error {
	return t.send(ctx, "text", tradeInterval, text)
}

// NotifyPortfolio sends the periodic portfolio digest.
func (t *Telegram) NotifyPortfolio(ctx context.Context, s *models.PortfolioSummary) error {
	text := fmt.Sprintf(
		"\U0001F4BC <b>portfolio</b>\npositions: %d\ninvested: %.0f KRW\nvalue: %.0f KRW\nPnL: %+.2f%%\navailable: %.0f KRW",
		s.TotalPositions, s.TotalInvested, s.TotalCurrentValue,
		s.TotalUnrealizedPnLRatio*100, s.AvailableCapital)
	return t.send(ctx, "portfolio", portfolioInterval, text)
}

// NotifyStatus sends the periodic heartbeat.
func (t *Telegram) NotifyStatus(ctx context.Context, text string) error {
	return t.send(ctx, "status", statusInterval, text)
}

func (t *Telegram) send(ctx context.Context, messageType string, interval time.Duration, text string) error {
	if !t.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	last, seen := t.lastSent[messageType]
	if seen && t.now().Sub(last) < interval {
		t.mu.Unlock()
		t.logger.Debug().Str("type", messageType).Msg("notification throttled")
		return nil
	}
	t.lastSent[messageType] = t.now()
	t.mu.Unlock()

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

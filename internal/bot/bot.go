// Package bot is the Discord front end of the trading game. It owns chat
// policy only: who may trade, when the market is open, whether a purchase
// is affordable. The ledger owns the money.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/mtaung/stonks/internal/ledger"
	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/store"
)

type Bot struct {
	session *discordgo.Session
	svc     *ledger.Service
	market  marketdata.Provider
	clock   *marketclock.Clock
	prefix  string
	log     *slog.Logger
}

func New(token, prefix string, svc *ledger.Service, market marketdata.Provider, clock *marketclock.Clock, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		session: session,
		svc:     svc,
		market:  market,
		clock:   clock,
		prefix:  prefix,
		log:     logger,
	}
	session.AddHandler(b.onMessage)
	return b, nil
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	b.log.Info("discord session open", "prefix", b.prefix)
	<-ctx.Done()
	return b.session.Close()
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.prefix) {
		return
	}
	args := splitArgs(strings.TrimPrefix(content, b.prefix))
	if len(args) == 0 {
		return
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	ctx := context.Background()
	var err error
	switch cmd {
	case "time":
		err = b.cmdTime(ctx, m)
	case "register":
		err = b.cmdRegister(ctx, m, args)
	case "buy":
		err = b.cmdTrade(ctx, m, args, true)
	case "sell":
		err = b.cmdTrade(ctx, m, args, false)
	case "balance":
		err = b.cmdBalance(ctx, m)
	case "inv":
		err = b.cmdInventory(ctx, m)
	case "daily":
		err = b.cmdDaily(ctx, m)
	case "leaderboard":
		err = b.cmdLeaderboard(ctx, m)
	case "help":
		err = b.cmdHelp(m)
	default:
		return
	}
	if err != nil {
		b.log.Error("command failed", "command", cmd, "user", m.Author.ID, "error", err)
		b.reply(m, "⚠ something went wrong, try again later")
	}
}

// errHandled marks a policy refusal already explained to the user.
var errHandled = errors.New("handled")

func (b *Bot) reply(m *discordgo.MessageCreate, text string) {
	if _, err := b.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		b.log.Warn("send message", "channel", m.ChannelID, "error", err)
	}
}

func (b *Bot) cmdTime(ctx context.Context, m *discordgo.MessageCreate) error {
	now := b.clock.Now()
	state := "closed"
	if b.clock.SessionOpen() {
		state = "open"
	}
	b.reply(m, fmt.Sprintf("It is currently %s for the market. The market is %s.",
		now.Format("Mon Jan 2 15:04:05 MST"), state))
	return nil
}

func (b *Bot) cmdRegister(ctx context.Context, m *discordgo.MessageCreate, args []string) error {
	if len(args) != 1 {
		b.reply(m, fmt.Sprintf("Usage: %sregister \"Company Name\"", b.prefix))
		return nil
	}
	displayName := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		displayName = m.Member.Nick
	}
	created, err := b.svc.EnsureUser(ctx, m.Author.ID)
	if err != nil {
		return err
	}
	if created {
		b.reply(m, fmt.Sprintf("Welcome to the stonks market, %s. We have added you to our registry.", displayName))
	}
	company, err := b.svc.RegisterCompany(ctx, m.Author.ID, args[0])
	if errors.Is(err, ledger.ErrCompanyExists) {
		if company == nil {
			company, err = b.svc.ActiveCompany(ctx, m.Author.ID)
			if err != nil {
				return err
			}
		}
		b.reply(m, fmt.Sprintf("You are already in ownership of the registered company %s, %s.", company.Name, displayName))
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(m, fmt.Sprintf("Your application to register %s has been accepted. Happy trading!", company.Name))
	return nil
}

func (b *Bot) cmdTrade(ctx context.Context, m *discordgo.MessageCreate, args []string, buy bool) error {
	verb := "sell"
	if buy {
		verb = "buy"
	}
	if len(args) != 2 {
		b.reply(m, fmt.Sprintf("Usage: %s%s <quantity> <symbol>", b.prefix, verb))
		return nil
	}
	quantity, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || quantity <= 0 {
		b.reply(m, "Quantity must be a positive whole number of shares.")
		return nil
	}
	symbol := strings.ToUpper(args[1])

	company, err := b.checkTradePolicy(ctx, m, symbol)
	if errors.Is(err, errHandled) {
		return nil
	}
	if err != nil {
		return err
	}

	quote, err := b.market.Quote(ctx, symbol)
	if err != nil {
		b.reply(m, fmt.Sprintf("No market price available for %s right now.", symbol))
		return nil
	}
	price := quote.LatestPriceMicros

	if buy {
		cost, ok := purchaseCost(price, quantity)
		if !ok {
			b.reply(m, fmt.Sprintf("%s cannot afford %d %s.", company.Name, quantity, symbol))
			return nil
		}
		if company.BalanceMicros < cost {
			b.reply(m, fmt.Sprintf("%s\nBalance: %.2f USD\nPurchase cost: %.2f USD",
				company.Name, ledger.MicrosToUSD(company.BalanceMicros), ledger.MicrosToUSD(cost)))
			return nil
		}
		res, err := b.svc.Buy(ctx, company.ID, symbol, quantity, price)
		if err != nil {
			return err
		}
		b.reply(m, fmt.Sprintf("``%s ⯮ %d %s @ %.2f``", company.Name, quantity, symbol, ledger.MicrosToUSD(res.NotionalMicros)))
		return nil
	}

	res, err := b.svc.Sell(ctx, company.ID, symbol, quantity, price)
	if errors.Is(err, ledger.ErrInsufficientShares) {
		b.reply(m, fmt.Sprintf("``%s\nYou do not hold %d %s``", company.Name, quantity, symbol))
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(m, fmt.Sprintf("``%s ⯬ %d %s @ %.2f``", company.Name, quantity, symbol, ledger.MicrosToUSD(res.NotionalMicros)))
	return nil
}

// checkTradePolicy runs the shared pre-trade gates: registered company,
// open market, known symbol. Refusals are messaged to the user and come
// back as errHandled.
func (b *Bot) checkTradePolicy(ctx context.Context, m *discordgo.MessageCreate, symbol string) (*store.Company, error) {
	company, err := b.svc.ActiveCompany(ctx, m.Author.ID)
	if errors.Is(err, ledger.ErrNoActiveCompany) {
		b.reply(m, fmt.Sprintf("You are not registered on the stonks market. Use %shelp register.", b.prefix))
		return nil, errHandled
	}
	if err != nil {
		return nil, err
	}
	if !b.clock.SessionOpen() {
		b.reply(m, fmt.Sprintf("The market is closed. Please try again in %s.", formatDuration(b.clock.UntilOpen())))
		return nil, errHandled
	}
	known, err := b.svc.SymbolKnown(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !known {
		b.reply(m, fmt.Sprintf("%s is not a valid stock symbol.", symbol))
		return nil, errHandled
	}
	return company, nil
}

func (b *Bot) cmdBalance(ctx context.Context, m *discordgo.MessageCreate) error {
	company, err := b.svc.ActiveCompany(ctx, m.Author.ID)
	if errors.Is(err, ledger.ErrNoActiveCompany) {
		b.reply(m, fmt.Sprintf("You are not registered on the stonks market. Use %shelp register.", b.prefix))
		return nil
	}
	if err != nil {
		return err
	}
	sum, err := b.svc.BalanceReport(ctx, company.ID)
	if err != nil {
		return err
	}
	arrow := "⮝"
	if sum.DeltaMicros < 0 {
		arrow = "⮟"
	}
	embed := &discordgo.MessageEmbed{
		Title:       sum.CompanyName,
		Description: fmt.Sprintf("%s%.2f%%", arrow, sum.DeltaPct),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Cash Assets:", Value: fmt.Sprintf("%.2f USD", ledger.MicrosToUSD(sum.BalanceMicros)), Inline: true},
			{Name: "Net worth:", Value: fmt.Sprintf("%.2f USD", ledger.MicrosToUSD(sum.NetWorthMicros)), Inline: true},
		},
	}
	if _, err := b.session.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		b.log.Warn("send embed", "channel", m.ChannelID, "error", err)
	}
	return nil
}

func (b *Bot) cmdInventory(ctx context.Context, m *discordgo.MessageCreate) error {
	company, err := b.svc.ActiveCompany(ctx, m.Author.ID)
	if errors.Is(err, ledger.ErrNoActiveCompany) {
		b.reply(m, fmt.Sprintf("You are not registered on the stonks market. Use %shelp register.", b.prefix))
		return nil
	}
	if err != nil {
		return err
	}
	holdings, err := b.svc.Portfolio(ctx, company.ID)
	if err != nil {
		return err
	}
	if len(holdings) == 0 {
		b.reply(m, fmt.Sprintf("%s holds no stock.", company.Name))
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-8s %10s %14s\n", "Symbol", "Quantity", "Value")
	for _, h := range holdings {
		fmt.Fprintf(&sb, "%-8s %10d %14.2f\n", h.Symbol, h.Quantity, ledger.MicrosToUSD(h.ValueMicros))
	}
	b.reply(m, "```\n"+sb.String()+"```")
	return nil
}

func (b *Bot) cmdDaily(ctx context.Context, m *discordgo.MessageCreate) error {
	company, err := b.svc.ActiveCompany(ctx, m.Author.ID)
	if errors.Is(err, ledger.ErrNoActiveCompany) {
		b.reply(m, fmt.Sprintf("You are not registered on the stonks market. Use %shelp register.", b.prefix))
		return nil
	}
	if err != nil {
		return err
	}
	lines, err := b.svc.DailyReport(ctx, company.ID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		b.reply(m, fmt.Sprintf("%s holds no stock.", company.Name))
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-2s %6s %-8s %10s %10s %10s %12s\n", "Δ", "%", "Symbol", "Quantity", "Purchase", "Close", "Gain")
	for _, l := range lines {
		sign := "+"
		if l.GainMicros < 0 {
			sign = "-"
		}
		fmt.Fprintf(&sb, "%-2s %6.1f %-8s %10d %10.2f %10.2f %12.2f\n",
			sign, l.GainPct, l.Symbol, l.Quantity,
			ledger.MicrosToUSD(l.PurchasePriceMicros), ledger.MicrosToUSD(l.CloseMicros), ledger.MicrosToUSD(l.GainMicros))
	}
	b.reply(m, "```diff\n"+sb.String()+"```")
	return nil
}

func (b *Bot) cmdLeaderboard(ctx context.Context, m *discordgo.MessageCreate) error {
	rows, err := b.svc.Leaderboard(ctx, 10)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		b.reply(m, "No companies on the market yet.")
		return nil
	}
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%2d. %-24s %14.2f USD\n", r.Rank, r.CompanyName, ledger.MicrosToUSD(r.NetWorthMicros))
	}
	b.reply(m, "```\n"+sb.String()+"```")
	return nil
}

func (b *Bot) cmdHelp(m *discordgo.MessageCreate) error {
	p := b.prefix
	b.reply(m, strings.Join([]string{
		"```",
		p + `register "Company Name"  join the game with a fresh company`,
		p + "buy <qty> <symbol>       buy shares at market price",
		p + "sell <qty> <symbol>      sell shares, oldest lots first",
		p + "balance                  cash and evaluated net worth",
		p + "inv                      holdings valued at the latest close",
		p + "daily                    per-lot standing against the close",
		p + "leaderboard              top companies by net worth",
		p + "time                     market clock and session state",
		"```",
	}, "\n"))
	return nil
}

package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ordinex/signalrelay/config"
	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		sourceKind   string
		websocketURL string
		pairsStr     string
		interval     string
		schedule     string

		execScoreStr  string
		alertScoreStr string
		confluenceStr string

		riskFractionStr string
		positionCapStr  string
		leverageStr     string
		timeoutStr      string
		protective      bool

		platform    string
		environment string
		apiKey      string
		apiSecret   string

		cooldownStr    string
		telegramOn     bool
		telegramToken  string
		telegramChatID string

		confirm bool
	)

	// defaults
	pairsStr = "BTC/USDT, ETH/USDT, SOL/USDT"
	interval = "1h"
	schedule = "@every 1m"
	execScoreStr = "0.8"
	alertScoreStr = "0.6"
	confluenceStr = "2"
	riskFractionStr = "0.02"
	positionCapStr = "100"
	leverageStr = "1"
	timeoutStr = "10s"
	cooldownStr = "1h"
	protective = true

	// step 1: welcome
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Qualified signals in, multi-account orders out.\n"))

	// signal source
	fmt.Println(stepStyle.Render("STEP 1: SIGNAL SOURCE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where do candidate signals come from?").
				Options(
					huh.NewOption("Built-in market scanner", "scanner"),
					huh.NewOption("Upstream websocket feed", "websocket"),
				).
				Value(&sourceKind),
		),
	).Run()
	if err != nil {
		return err
	}

	// source specifics
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	if sourceKind == "websocket" {
		fmt.Println(stepStyle.Render("STEP 2: FEED ENDPOINT"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Websocket URL").
					Description("Upstream analysis feed (e.g. wss://signals.example.com/stream)").
					Value(&websocketURL).
					Validate(func(s string) error {
						if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
							return fmt.Errorf("must start with ws:// or wss://")
						}
						return nil
					}),
			),
		).Run()
	} else {
		fmt.Println(stepStyle.Render("STEP 2: SCANNER"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Pairs").
					Description("Comma separated (e.g. BTC/USDT, ETH/USDT)").
					Value(&pairsStr).
					Validate(validatePairs),
				huh.NewInput().
					Title("Kline Interval").
					Description("Candle size per pair (e.g. 15m, 1h, 4h)").
					Value(&interval),
				huh.NewInput().
					Title("Scan Schedule").
					Description("Cron spec with seconds (e.g. @every 1m)").
					Value(&schedule),
			),
		).Run()
	}
	if err != nil {
		return err
	}

	// qualification gates
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: QUALIFICATION"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Min Execution Score").
				Description("Signals at or above this score are executed (0-1)").
				Value(&execScoreStr).
				Validate(validateScore),
			huh.NewInput().
				Title("Min Alert Score").
				Description("Signals between this and the execution score alert only (0-1)").
				Value(&alertScoreStr).
				Validate(validateScore),
			huh.NewInput().
				Title("Min Confluence").
				Description("Indicator votes required (e.g. 2)").
				Value(&confluenceStr).
				Validate(validateCount),
		),
	).Run()
	if err != nil {
		return err
	}

	// execution sizing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: EXECUTION"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Risk Fraction").
				Description("Share of quote balance per trade (e.g. 0.02)").
				Value(&riskFractionStr).
				Validate(validateFraction),
			huh.NewInput().
				Title("Position Cap USD").
				Description("Absolute size ceiling before leverage (e.g. 100)").
				Value(&positionCapStr).
				Validate(validateUSD),
			huh.NewInput().
				Title("Default Leverage").
				Description("Applied to accounts without their own setting").
				Value(&leverageStr).
				Validate(validateLeverage),
			huh.NewInput().
				Title("Per-Account Timeout").
				Description("Duration string (e.g. 10s)").
				Value(&timeoutStr).
				Validate(validateDuration),
			huh.NewConfirm().
				Title("Place protective orders (SL/TP)?").
				Value(&protective),
		),
	).Run()
	if err != nil {
		return err
	}

	// accounts
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: ACCOUNTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default Platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
					huh.NewOption("Paper", "paper"),
				).
				Value(&platform),
			huh.NewSelect[string]().
				Title("Environment").
				Options(
					huh.NewOption("Live", "live"),
					huh.NewOption("Testnet", "testnet"),
				).
				Value(&environment),
			huh.NewInput().
				Title("API Key").
				Description("Fallback account. Numbered accounts come from RELAY_ACCOUNT_API_KEY_1, _2, ...").
				Value(&apiKey).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("API Secret").
				Value(&apiSecret).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	// alerts
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 6: ALERTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Alert Cooldown").
				Description("Per-symbol notification window (e.g. 1h)").
				Value(&cooldownStr).
				Validate(validateDuration),
			huh.NewConfirm().
				Title("Send Telegram notifications?").
				Value(&telegramOn),
		),
	).Run()
	if err != nil {
		return err
	}

	if telegramOn {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Telegram Bot Token").
					Value(&telegramToken).
					EchoMode(huh.EchoModePassword),
				huh.NewInput().
					Title("Telegram Chat ID").
					Value(&telegramChatID),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNAL RELAY CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	// show summary
	summary := fmt.Sprintf(
		"Source: %s\nExecution gate: score >= %s, confluence >= %s\nSizing: balance x %s, capped at $%s\nPlatform: %s (%s)\nAlert cooldown: %s\n",
		sourceKind, execScoreStr, confluenceStr, riskFractionStr, positionCapStr, platform, environment, cooldownStr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	// generate config; inputs already passed their field validators
	execScore, _ := strconv.ParseFloat(execScoreStr, 64)
	alertScore, _ := strconv.ParseFloat(alertScoreStr, 64)
	confluence, _ := strconv.Atoi(confluenceStr)
	riskFraction, _ := strconv.ParseFloat(riskFractionStr, 64)
	leverage, _ := strconv.Atoi(leverageStr)
	timeout, _ := time.ParseDuration(timeoutStr)
	cooldown, _ := time.ParseDuration(cooldownStr)

	var pairs []string
	for _, p := range strings.Split(pairsStr, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			pairs = append(pairs, trimmed)
		}
	}

	cfg := config.Config{
		Qualifier: config.QualifierConfig{
			MinExecutionScore: execScore,
			MinAlertScore:     alertScore,
			MinConfluence:     confluence,
		},
		Alerts: config.AlertsConfig{
			CooldownSeconds: int(cooldown.Seconds()),
		},
		Execution: config.ExecutionConfig{
			AutoSLTP:            &protective,
			RiskFraction:        riskFraction,
			PositionCapUSD:      positionCapStr,
			MinNotionalUSD:      "10",
			PerAccountTimeoutMS: int(timeout.Milliseconds()),
			DefaultLeverage:     leverage,
			ProtectiveOrders:    &protective,
		},
		Accounts: config.AccountsConfig{
			EnvPrefix:   "RELAY_ACCOUNT",
			Platform:    platform,
			Environment: environment,
			APIKey:      apiKey,
			APISecret:   apiSecret,
		},
		Source: config.SourceConfig{
			Kind:         sourceKind,
			WebsocketURL: websocketURL,
			Pairs:        pairs,
			Interval:     interval,
			Schedule:     schedule,
		},
		Notify: config.NotifyConfig{
			Telegram: config.TelegramConfig{
				Enabled: telegramOn,
				Token:   telegramToken,
				ChatID:  telegramChatID,
			},
		},
		Storage: config.StorageConfig{
			Dir:       "./data",
			Positions: "wal",
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	// write to config.gen.yaml
	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting relay...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateScore(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateFraction(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if f <= 0 || f > 1 {
		return fmt.Errorf("must be above 0 and at most 1")
	}
	return nil
}

func validateUSD(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid amount")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 {
		return fmt.Errorf("cannot be negative")
	}
	return nil
}

func validateLeverage(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateDuration(s string) error {
	_, err := time.ParseDuration(s)
	return err
}

func validatePairs(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("need at least one pair")
	}
	for _, p := range strings.Split(s, ",") {
		if _, err := domain.ParsePair(strings.TrimSpace(p)); err != nil {
			return err
		}
	}
	return nil
}

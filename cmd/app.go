package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"near-intents/config"
	"near-intents/pkg/balance"
	"near-intents/pkg/bridge"
	"near-intents/pkg/client"
	"near-intents/pkg/deposit"
	"near-intents/pkg/history"
	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
	"near-intents/pkg/metrics"
	"near-intents/pkg/near"
	"near-intents/pkg/orchestrator"
	"near-intents/pkg/quoter"
	"near-intents/pkg/relay"
	"near-intents/pkg/signer"
	"near-intents/pkg/tracker"
	"near-intents/pkg/wallet"
)

// app holds the clients shared by commands. Fields are nil until the
// matching need* method is called.
type app struct {
	cfg *config.Config
	log *slog.Logger

	oneClick *client.OneClickClient
	relay    *relay.Client
	near     *near.Client
	poa      *bridge.POAClient
	deposits *deposit.Manager
	history  history.Store
	metrics  *metrics.Registry
	wallet   signer.Wallet
	signer   *signer.Actor
	tokens   intent.TokenList
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config(cfg.Log)); err != nil {
		return nil, fmt.Errorf("failed to initialise logging: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}

	a := &app{
		cfg:      cfg,
		log:      logger.Named("cli"),
		oneClick: client.NewOneClickClient(cfg.JWTToken, cfg.BaseURL),
		near:     near.NewClient(cfg.NearRPCURL, cfg.IntentsContract),
	}
	if cfg.MetricsAddr != "" {
		a.metrics = metrics.New()
		go func() {
			if err := a.metrics.Serve(cmd.Context(), cfg.MetricsAddr); err != nil {
				a.log.Warn("metrics server stopped", slog.Any("err", err))
			}
		}()
	}
	return a, nil
}

func (a *app) Close() {
	if a.deposits != nil {
		a.deposits.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
	_ = logger.Close()
}

func (a *app) needRelay(ctx context.Context) error {
	if a.relay != nil {
		return nil
	}
	c, err := relay.Dial(ctx, a.cfg.SolverRelayURL, relay.WithMinDeadline(a.cfg.QuoteMinDeadline))
	if err != nil {
		return err
	}
	a.relay = c
	return nil
}

func (a *app) needBridge(ctx context.Context) error {
	if a.poa != nil {
		return nil
	}
	c, err := bridge.Dial(ctx, a.cfg.BridgeURL)
	if err != nil {
		return err
	}
	a.poa = c
	return nil
}

func (a *app) needSigner() error {
	if a.signer != nil {
		return nil
	}
	if err := a.cfg.RequireSigner(); err != nil {
		return err
	}
	w, err := wallet.FromConfig(a.cfg.Signer)
	if err != nil {
		return err
	}
	a.wallet = w
	a.signer = signer.New(w,
		signer.WithKeyRegistry(a.near),
		signer.WithVerifyingContract(a.cfg.IntentsContract),
		signer.WithDeadline(a.cfg.SignDeadline),
	)
	return nil
}

func (a *app) needHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	store, err := history.Open(ctx, a.cfg.History)
	if err != nil {
		return err
	}
	a.history = store
	return nil
}

func (a *app) needTokens(ctx context.Context) error {
	if a.tokens != nil {
		return nil
	}
	tokens, err := a.oneClick.Tokens(ctx)
	if err != nil {
		return err
	}
	a.tokens = tokens
	return nil
}

const solanaChain = "sol:mainnet"

// poaChain maps a configured chain name to the bridge's chain id, or "" when
// the name is unknown.
func (a *app) poaChain(name string) string {
	name = normalizeChain(name)
	switch {
	case strings.Contains(name, ":"):
		return name
	case name == "sol" || name == "solana":
		return solanaChain
	}
	if network, ok := a.cfg.AutoDeposit.EVM.Networks[name]; ok {
		return fmt.Sprintf("eth:%d", network.ChainID)
	}
	return ""
}

// needDeposits registers a sender for every configured chain under its
// bridge chain id, which is what the bridge reports for withdrawals.
func (a *app) needDeposits(ctx context.Context) error {
	if a.deposits != nil {
		return nil
	}
	m := deposit.NewManager()
	for name, network := range a.cfg.AutoDeposit.EVM.Networks {
		d, err := deposit.NewEVMDepositor(ctx, network)
		if err != nil {
			m.Close()
			return fmt.Errorf("failed to set up %s depositor: %w", name, err)
		}
		m.Register(a.poaChain(name), d)
	}
	if a.cfg.AutoDeposit.Solana.RPCUrl != "" {
		d, err := deposit.NewSolanaDepositor(a.cfg.AutoDeposit.Solana)
		if err != nil {
			m.Close()
			return fmt.Errorf("failed to set up solana depositor: %w", err)
		}
		m.Register(solanaChain, d)
	}
	a.deposits = m
	return nil
}

func (a *app) userID() string {
	return a.wallet.Identity().SignerID
}

func (a *app) resolveToken(symbol, chain string) (intent.Token, error) {
	t, ok := a.tokens.Find(symbol, chain)
	if !ok {
		if chain != "" {
			return intent.Token{}, fmt.Errorf("token %s not found on %s (try: near-intents list-tokens)", symbol, chain)
		}
		return intent.Token{}, fmt.Errorf("token %s not found (try: near-intents list-tokens)", symbol)
	}
	return t, nil
}

// session is a running orchestrator with its balance actor.
type session struct {
	o        *orchestrator.Orchestrator
	balances *balance.Actor
	notes    chan orchestrator.Notification
}

// startSession wires an orchestrator for the signer account and runs it until ctx ends.
func (a *app) startSession(ctx context.Context, watch []string) (*session, error) {
	if err := a.needSigner(); err != nil {
		return nil, err
	}
	if err := a.needRelay(ctx); err != nil {
		return nil, err
	}
	if err := a.needTokens(ctx); err != nil {
		return nil, err
	}
	if err := a.needBridge(ctx); err != nil {
		return nil, err
	}
	if err := a.needDeposits(ctx); err != nil {
		return nil, err
	}

	s := &session{notes: make(chan orchestrator.Notification, 256)}
	s.balances = balance.New(a.near, a.userID(), watch, nil)

	var provider quoter.Provider = a.relay
	mode := orchestrator.ModeIntents
	if a.cfg.SwapMode == string(orchestrator.ModeOneClick) {
		if err := a.cfg.RequireOneClick(); err != nil {
			return nil, err
		}
		provider, mode = a.oneClick, orchestrator.ModeOneClick
	}

	var store history.Store
	if a.needHistory(ctx) == nil {
		store = a.history
	}

	s.o = orchestrator.New(orchestrator.Config{
		Mode:            mode,
		UserID:          a.userID(),
		Referral:        a.cfg.Referral,
		Tokens:          a.tokens,
		Provider:        provider,
		Signer:          a.signer,
		Publisher:       a.relay,
		IntentStatus:    a.relay,
		Waiter:          a.relay,
		OneClick:        a.oneClick,
		Bridge:          bridge.NewService(a.poa, a.deposits),
		POA:             a.poa,
		Depositor:       a.deposits,
		Balances:        s.balances,
		History:         store,
		Metrics:         a.metrics,
		QuoteInterval:   a.cfg.QuoteInterval,
		PollInterval:    a.cfg.PollInterval,
		MaxPollFailures: a.cfg.MaxPollFailures,
		BridgeBackoff: tracker.BackoffPolicy{
			Base:      a.cfg.BridgeBackoffBase,
			Max:       a.cfg.BridgeBackoffMax,
			MaxJitter: tracker.DefaultBridgeBackoff.MaxJitter,
		},
		Notify: func(n orchestrator.Notification) {
			select {
			case s.notes <- n:
			default:
			}
		},
	})

	go func() { _ = s.balances.Run(ctx) }()
	go func() { _ = s.o.Run(ctx) }()
	if _, err := s.balances.RefreshAndWait(ctx); err != nil {
		a.log.Warn("initial balance read failed", slog.Any("err", err))
	}
	return s, nil
}

func normalizeChain(chain string) string {
	return strings.ToLower(strings.TrimSpace(chain))
}

package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nftlend/config"
	"nftlend/crypto"
	"nftlend/native/lending"
	"nftlend/native/params"
	"nftlend/observability/logging"
	"nftlend/storage"
)

// moduleAddress is the deterministic escrow address holding pledged collateral
// and isolated stuck funds. It has no private key, so nothing can spend from
// it outside engine transitions.
func moduleAddress() crypto.Address {
	digest := sha256.Sum256([]byte("nftlend/lending/module"))
	return crypto.NewAddress(crypto.LendPrefix, digest[:20])
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.toml", "path to lendingd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NFTLEND_ENV"))
	logger := logging.Setup("lendingd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("config file not found, using defaults", "path", cfgPath)
			cfg = config.Default()
		} else {
			log.Fatalf("load config: %v", err)
		}
	}
	if env == "" {
		env = cfg.Environment
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	store, err := storage.NewStore(filepath.Join(cfg.DataDir, "lendingd.db"), nil)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	paramStore := params.NewStore(store)
	engine, err := buildEngine(cfg, store, paramStore, logger)
	if err != nil {
		log.Fatalf("bootstrap engine: %v", err)
	}

	server := NewServer(engine, store.QuoteBook(), store.RoleSet(), paramStore, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "address", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}

// buildEngine wires the loan engine to the store-backed collaborators and
// seeds state from the configuration. Persisted governance parameters take
// precedence over the bootstrap values in the config file.
func buildEngine(cfg config.Config, store *storage.Store, paramStore *params.Store, logger *slog.Logger) (*lending.Engine, error) {
	bootParams, persisted, err := paramStore.Lending()
	if err != nil {
		return nil, err
	}
	if !persisted {
		bootParams, err = paramsFromConfig(cfg.Lending)
		if err != nil {
			return nil, err
		}
		if err := paramStore.SetLending(bootParams); err != nil {
			return nil, err
		}
		logger.Info("lending parameters seeded from config")
	}

	engine := lending.NewEngine(moduleAddress(), bootParams)
	engine.SetState(store)
	engine.SetTokenBank(store.TokenLedger())
	engine.SetCollateralKeeper(store.CollateralVault())
	engine.SetAddressGate(store.AccessList())
	engine.SetRoles(store.RoleSet())
	engine.SetValuationGate(lending.NewValuationGate(store.QuoteBook()))
	engine.SetEmitter(newLogEmitter(logger))
	engine.SetPauses(cfg.Pauses)

	ledger := store.TokenLedger()
	for _, token := range cfg.Lending.Tokens {
		if err := ledger.RegisterToken(token.Symbol, token.Decimals); err != nil {
			return nil, err
		}
	}
	vault := store.CollateralVault()
	for _, raw := range cfg.Lending.Collections {
		collection, err := crypto.DecodeAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid collection address %q: %w", raw, err)
		}
		if err := vault.RegisterCollection(collection); err != nil {
			return nil, err
		}
	}

	if admin := strings.TrimSpace(cfg.Admin); admin != "" {
		adminAddr, err := crypto.DecodeAddress(admin)
		if err != nil {
			return nil, fmt.Errorf("invalid admin address: %w", err)
		}
		roles := store.RoleSet()
		for _, role := range []string{lending.RoleLendAdmin, lending.RoleTreasurer, lending.RoleOracle} {
			if err := roles.Grant(role, adminAddr); err != nil {
				return nil, err
			}
		}
		if err := store.AccessList().Allow(adminAddr); err != nil {
			return nil, err
		}

		treasury, hasTreasury, err := paramStore.Treasury()
		if err != nil {
			return nil, err
		}
		if !hasTreasury {
			raw := strings.TrimSpace(cfg.Treasury)
			if raw == "" {
				return nil, errors.New("config: Treasury is required on first boot")
			}
			treasury, err = crypto.DecodeAddress(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid treasury address: %w", err)
			}
			if err := paramStore.SetTreasury(treasury); err != nil {
				return nil, err
			}
		}
		if err := engine.SetTreasury(adminAddr, treasury); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

// paramsFromConfig layers the config file's bootstrap values over the module
// defaults, running every value through the validated setters so a bad config
// fails boot instead of installing an out-of-bound parameter.
func paramsFromConfig(cfg config.Lending) (lending.Params, error) {
	p := lending.DefaultParams()
	if err := p.SetProtocolFee(cfg.ProtocolFeeBps); err != nil {
		return lending.Params{}, err
	}
	if err := p.SetRepayGrace(cfg.RepayGracePeriod, cfg.RepayGraceFeeBps); err != nil {
		return lending.Params{}, err
	}
	if err := p.SetLiquidationFee(cfg.LiquidationFeeBps); err != nil {
		return lending.Params{}, err
	}
	if err := p.SetOriginationFee(cfg.OriginationFeeBps); err != nil {
		return lending.Params{}, err
	}
	if len(cfg.OriginationBrackets) > 0 {
		if err := p.SetOriginationBrackets(cfg.Brackets()); err != nil {
			return lending.Params{}, err
		}
	}
	if err := p.SetFeeReductionFactor(cfg.FeeReductionFactor); err != nil {
		return lending.Params{}, err
	}
	if err := p.SetLenderExclusiveWindow(cfg.LenderExclusiveWindow); err != nil {
		return lending.Params{}, err
	}
	for _, entry := range cfg.Durations {
		if err := p.SetDurationApr(entry.DurationSeconds, entry.AprBps); err != nil {
			return lending.Params{}, err
		}
	}
	for _, symbol := range cfg.AllowedTokens {
		if err := p.AllowToken(symbol); err != nil {
			return lending.Params{}, err
		}
	}
	return p, nil
}

// Command korasign is the paymaster signing daemon entrypoint: it loads
// the declarative config and signers files, wires every internal package
// together into an rpcmethod.Service, and exits with the codes spec'd for
// each startup failure mode. HTTP/JSON-RPC framing is intentionally thin
// here — the pipeline logic all lives in internal/rpcmethod.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/audit"
	"github.com/yourusername/korasign/internal/auth"
	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/config"
	"github.com/yourusername/korasign/internal/fee"
	"github.com/yourusername/korasign/internal/metrics"
	"github.com/yourusername/korasign/internal/oracle"
	"github.com/yourusername/korasign/internal/policy"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/rpcmethod"
	"github.com/yourusername/korasign/internal/signer"
)

const (
	exitOK             = 0
	exitConfigInvalid  = 1
	exitSignerInitFail = 2
	exitBindFailed     = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "kora.yaml", "path to the declarative config document")
	signersPath := flag.String("signers", "signers.yaml", "path to the signers file")
	listenAddr := flag.String("listen", ":8080", "JSON-RPC HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", "https://api.mainnet-beta.solana.com", "Solana RPC endpoint")
	auditPath := flag.String("audit-log", "", "path to the NDJSON audit log (disabled if empty)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		return exitConfigInvalid
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config invalid", zap.Error(err))
		return exitConfigInvalid
	}

	ctx := context.Background()
	pool, err := config.LoadSigners(ctx, *signersPath, logger)
	if err != nil {
		logger.Error("signer init failed", zap.Error(err))
		return exitSignerInitFail
	}

	svc, auditLogger, err := buildService(cfg, pool, *rpcEndpoint, *auditPath, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		return exitSignerInitFail
	}
	if auditLogger != nil {
		defer auditLogger.Close()
	}

	handler := &rpcmethod.Handler{
		Service:     svc,
		Auth:        cfg.Auth.ToAuthConfig(),
		RateLimiter: auth.NewRateLimiter(cfg.Kora.RateLimit, cfg.Kora.RateLimit*2),
	}

	logger.Info("korasign listening", zap.String("addr", *listenAddr))
	if err := http.ListenAndServe(*listenAddr, handler); err != nil {
		logger.Error("bind failed", zap.Error(err))
		return exitBindFailed
	}

	return exitOK
}

// buildService wires every internal package into a single rpcmethod.Service,
// mirroring the declarative config into the concrete types each component
// expects.
func buildService(cfg *config.Config, pool *signer.Pool, rpcEndpoint, auditPath string, logger *zap.Logger) (*rpcmethod.Service, *audit.Logger, error) {
	c := cache.NewMemory(4096)
	rpcOracle := chainrpc.NewClientOracle(rpcEndpoint, logger)

	pol := cfg.Validation.ToPolicy()
	engine := policy.New(pol, c, rpcOracle, logger)
	res := resolver.New(c, rpcOracle, logger)
	fees := fee.New(c, rpcOracle)

	var priceOracle oracle.Source
	if cfg.Validation.PriceSource == "Jupiter" {
		priceOracle = oracle.NewJupiter(nil) // network fetch wiring is deployment-specific
	} else {
		priceOracle = oracle.NewMock(nil)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var auditLogger *audit.Logger
	if auditPath != "" {
		var err error
		auditLogger, err = audit.Open(auditPath)
		if err != nil {
			return nil, nil, err
		}
	}

	svc := &rpcmethod.Service{
		Policy:      pol,
		Engine:      engine,
		Resolver:    res,
		Fees:        fees,
		Oracle:      rpcOracle,
		PriceOracle: priceOracle,
		Signers:     pool,
		PriceModel:  cfg.Validation.ToPriceModel(),
		Enabled:     cfg.EnabledMethods,
		Metrics:     m,
		Audit:       auditLogger,
		Logger:      logger,
	}
	return svc, auditLogger, nil
}

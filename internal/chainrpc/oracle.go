// Package chainrpc provides the chain-facing read/write surface the rest of
// the module needs: recent blockhash, account data, simulation, and
// submission. It wraps solana-go/rpc behind a small interface so tests can
// swap in a mock oracle.
package chainrpc

import (
	"context"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/perr"
)

// Oracle is the chain read/write surface the rest of the module depends on.
// Every method is context-cancellable; implementations must return promptly
// on ctx.Done() rather than block on an in-flight network call.
type Oracle interface {
	// GetLatestBlockhash returns the current recent blockhash and the slot
	// at which it was observed.
	GetLatestBlockhash(ctx context.Context) (blockhash [32]byte, slot uint64, err error)

	// GetAccountData returns an account's raw data, or nil with no error
	// if the account does not exist.
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)

	// SimulateTransaction simulates tx (base64 wire bytes) and returns any
	// chain-reported error message, or "" on success. sigVerify controls
	// whether the simulator checks attached signatures; it is always a
	// simulation-only hint and never gates this module's own decision to
	// sign.
	SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (chainErr string, err error)

	// SubmitTransaction submits tx (base64 wire bytes, fully signed) and
	// returns its signature.
	SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error)
}

// ClientOracle is the solana-go/rpc-backed Oracle used in production,
// adapted from the teacher's rpc/client.go endpoint-wrapping pattern:
// a thin typed layer over the raw RPC client with chain errors folded into
// this module's error taxonomy.
type ClientOracle struct {
	client *solanarpc.Client
	logger *zap.Logger
}

func NewClientOracle(endpoint string, logger *zap.Logger) *ClientOracle {
	return &ClientOracle{client: solanarpc.New(endpoint), logger: logger}
}

func (o *ClientOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	out, err := o.client.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	if err != nil {
		return [32]byte{}, 0, perr.New(perr.OracleUnavailable, perr.Retryable, "get latest blockhash failed", err)
	}
	var hash [32]byte
	copy(hash[:], out.Value.Blockhash[:])
	return hash, out.Context.Slot, nil
}

func (o *ClientOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := o.client.GetAccountInfo(ctx, account)
	if err != nil {
		if err == solanarpc.ErrNotFound {
			return nil, nil
		}
		return nil, perr.New(perr.OracleUnavailable, perr.Retryable, "get account info failed", err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	return out.Value.Data.GetBinary(), nil
}

func (o *ClientOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	tx, err := solana.TransactionFromBase64(txBase64)
	if err != nil {
		return "", perr.New(perr.MalformedWire, perr.NonRetryable, "simulate: malformed transaction", err)
	}
	out, err := o.client.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
		SigVerify: sigVerify,
	})
	if err != nil {
		return "", perr.New(perr.OracleUnavailable, perr.Retryable, "simulate transaction failed", err)
	}
	if out.Value.Err != nil {
		return formatChainErr(out.Value.Err), nil
	}
	return "", nil
}

func (o *ClientOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	tx, err := solana.TransactionFromBase64(txBase64)
	if err != nil {
		return solana.Signature{}, perr.New(perr.MalformedWire, perr.NonRetryable, "submit: malformed transaction", err)
	}
	sig, err := o.client.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		SkipPreflight: false,
	})
	if err != nil {
		return solana.Signature{}, perr.NewSubmitRejected(chainCodeOf(err), "submit transaction rejected", err)
	}
	return sig, nil
}

func formatChainErr(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "chain simulation error"
}

func chainCodeOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

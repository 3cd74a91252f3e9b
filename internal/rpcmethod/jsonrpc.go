package rpcmethod

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/auth"
	"github.com/yourusername/korasign/internal/perr"
)

// rpcRequest is a JSON-RPC 2.0 request envelope (spec §6).
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler is the HTTP entrypoint: JSON-RPC 2.0 over POST, auth and rate
// limiting applied before dispatch, per spec §4.7/§5.
type Handler struct {
	Service     *Service
	Auth        auth.Config
	RateLimiter *auth.RateLimiter
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, nil, perr.New(perr.MalformedWire, perr.NonRetryable, "unreadable body", err))
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, perr.New(perr.MalformedWire, perr.NonRetryable, "malformed JSON-RPC envelope", err))
		return
	}

	authReq := auth.Request{
		Method:          req.Method,
		APIKeyHeader:    r.Header.Get("x-api-key"),
		TimestampHeader: r.Header.Get("x-timestamp"),
		SignatureHeader: r.Header.Get("x-hmac-signature"),
		RawBody:         body,
	}
	if err := auth.Authenticate(h.Auth, authReq); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}

	if h.RateLimiter != nil {
		identity := r.Header.Get("x-api-key")
		if identity == "" {
			identity = r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				identity = host
			}
		}
		if err := h.RateLimiter.Allow(identity); err != nil {
			writeRPCError(w, req.ID, err)
			return
		}
	}

	result, err := h.dispatch(r.Context(), req)
	if err != nil {
		writeRPCError(w, req.ID, err)
		return
	}

	writeRPCResult(w, req.ID, result)
}

func (h *Handler) dispatch(ctx context.Context, req rpcRequest) (interface{}, error) {
	switch req.Method {
	case "getConfig":
		return h.Service.GetConfig(ctx)

	case "getPayerSigner":
		var p struct {
			SignerKey string `json:"signer_key"`
		}
		_ = json.Unmarshal(req.Params, &p)
		return h.Service.GetPayerSigner(ctx, p.SignerKey)

	case "getBlockhash":
		return h.Service.GetBlockhash(ctx)

	case "getSupportedTokens":
		return h.Service.GetSupportedTokens(ctx)

	case "estimateTransactionFee":
		var p struct {
			Transaction string `json:"transaction"`
			FeeToken    string `json:"fee_token"`
			SignerKey   string `json:"signer_key"`
			SigVerify   bool   `json:"sig_verify"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "malformed params", err)
		}
		feeToken, err := parsePubkey(p.FeeToken)
		if err != nil {
			return nil, err
		}
		return h.Service.EstimateTransactionFee(ctx, p.Transaction, feeToken, p.SignerKey, p.SigVerify)

	case "signTransaction":
		var p struct {
			Transaction string `json:"transaction"`
			SignerKey   string `json:"signer_key"`
			SigVerify   bool   `json:"sig_verify"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "malformed params", err)
		}
		return h.Service.SignTransaction(ctx, requestID(req.ID), p.Transaction, p.SignerKey, p.SigVerify)

	case "signAndSendTransaction":
		var p struct {
			Transaction string `json:"transaction"`
			SignerKey   string `json:"signer_key"`
			SigVerify   bool   `json:"sig_verify"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "malformed params", err)
		}
		return h.Service.SignAndSendTransaction(ctx, requestID(req.ID), p.Transaction, p.SignerKey, p.SigVerify)

	case "transferTransaction":
		var p struct {
			Amount      uint64 `json:"amount"`
			Mint        string `json:"mint"`
			Source      string `json:"source"`
			Destination string `json:"destination"`
			SignerKey   string `json:"signer_key"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "malformed params", err)
		}
		mint, err := parsePubkey(p.Mint)
		if err != nil {
			return nil, err
		}
		source, err := parsePubkey(p.Source)
		if err != nil {
			return nil, err
		}
		destination, err := parsePubkey(p.Destination)
		if err != nil {
			return nil, err
		}
		return h.Service.TransferTransaction(ctx, p.Amount, mint, source, destination, p.SignerKey)

	default:
		return nil, perr.New(perr.MethodDisabled, perr.NonRetryable, "unknown method: "+req.Method, nil)
	}
}

func parsePubkey(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, perr.New(perr.MalformedWire, perr.NonRetryable, "invalid public key: "+s, err)
	}
	return pk, nil
}

func requestID(raw json.RawMessage) string {
	return string(raw)
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, err error) {
	w.Header().Set("Content-Type", "application/json")
	code := -32000
	msg := err.Error()
	if pe, ok := err.(*perr.Error); ok {
		code = pe.RPCCode()
		msg = fmt.Sprintf("%s: %s", pe.Code, pe.Message)
	}
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

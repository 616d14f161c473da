package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/halcyonlabs/credit-guardian/internal/httputil"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

const (
	receiptPollInterval = 500 * time.Millisecond
	attemptTimeout      = 30 * time.Second
)

// Client talks to the credit vault contract. It implements Ledger: reads go
// through eth_call, writes are signed legacy transactions confirmed against
// their receipt before the call reports success.
type Client struct {
	rpc        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	chainID    *big.Int
	gasLimit   uint64
	gasMul     float64

	contract common.Address
	vaultABI abi.ABI
	assets   []models.Asset
	retry    httputil.RetryConfig
}

func NewClient(rpcURL, privateKeyHex, contractAddr string, chainID int64, gasLimit int, gasMultiplier float64, assets []models.Asset) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}

	pkHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	vaultABI, err := abi.JSON(mustVaultABI())
	if err != nil {
		return nil, fmt.Errorf("parse vault ABI: %w", err)
	}

	if len(assets) == 0 {
		assets = models.DefaultAssets
	}

	return &Client{
		rpc:        rpc,
		privateKey: pk,
		wallet:     crypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
		gasLimit:   uint64(gasLimit),
		gasMul:     gasMultiplier,
		contract:   common.HexToAddress(contractAddr),
		vaultABI:   vaultABI,
		assets:     assets,
		retry:      httputil.DefaultRetry,
	}, nil
}

func (c *Client) WalletAddress() common.Address { return c.wallet }
func (c *Client) Close()                        { c.rpc.Close() }

// --- reads ---

// Snapshot reads the full position view in one pass: collateral and debt
// entries, reputation, timestamps, and the current price of every registry
// asset, so downstream health math runs against a consistent view.
func (c *Client) Snapshot(ctx context.Context, owner string) (*models.Snapshot, error) {
	key := PositionKey(common.HexToAddress(owner))

	collaterals, err := c.readCollaterals(ctx, key)
	if err != nil {
		return nil, wrapCall("collaterals", err)
	}
	debts, err := c.readDebts(ctx, key)
	if err != nil {
		return nil, wrapCall("debts", err)
	}
	rep, err := c.readReputation(ctx, key)
	if err != nil {
		return nil, wrapCall("reputation", err)
	}
	lastUpdate, lastGadCrank, err := c.readPositionMeta(ctx, key)
	if err != nil {
		return nil, wrapCall("positionMeta", err)
	}

	prices := make(map[string]uint64, len(c.assets))
	for _, a := range c.assets {
		price, err := c.readPrice(ctx, a.Symbol)
		if err != nil {
			return nil, wrapCall("priceUsd", err)
		}
		prices[a.Symbol] = price
	}

	return &models.Snapshot{
		Position: models.Position{
			Owner:        owner,
			Collaterals:  collaterals,
			Debts:        debts,
			Reputation:   rep,
			LastUpdate:   time.Unix(int64(lastUpdate), 0),
			LastGadCrank: time.Unix(int64(lastGadCrank), 0),
		},
		Prices: prices,
		Assets: c.assets,
		Taken:  time.Now(),
	}, nil
}

func (c *Client) readCollaterals(ctx context.Context, key common.Hash) ([]models.CollateralEntry, error) {
	out, err := c.call(ctx, "collaterals", key)
	if err != nil {
		return nil, err
	}
	symbols, ok1 := out[0].([][32]byte)
	amounts, ok2 := out[1].([]uint64)
	if !ok1 || !ok2 || len(symbols) != len(amounts) {
		return nil, fmt.Errorf("malformed collaterals result")
	}
	entries := make([]models.CollateralEntry, 0, len(symbols))
	for i := range symbols {
		entries = append(entries, models.CollateralEntry{
			Asset:  symbolFrom32(symbols[i]),
			Amount: amounts[i],
		})
	}
	return entries, nil
}

func (c *Client) readDebts(ctx context.Context, key common.Hash) ([]models.DebtEntry, error) {
	out, err := c.call(ctx, "debts", key)
	if err != nil {
		return nil, err
	}
	symbols, ok1 := out[0].([][32]byte)
	principals, ok2 := out[1].([]uint64)
	interests, ok3 := out[2].([]uint64)
	if !ok1 || !ok2 || !ok3 || len(symbols) != len(principals) || len(symbols) != len(interests) {
		return nil, fmt.Errorf("malformed debts result")
	}
	entries := make([]models.DebtEntry, 0, len(symbols))
	for i := range symbols {
		entries = append(entries, models.DebtEntry{
			Asset:           symbolFrom32(symbols[i]),
			Principal:       principals[i],
			AccruedInterest: interests[i],
		})
	}
	return entries, nil
}

func (c *Client) readReputation(ctx context.Context, key common.Hash) (models.Reputation, error) {
	out, err := c.call(ctx, "reputation", key)
	if err != nil {
		return models.Reputation{}, err
	}
	rep := models.Reputation{}
	var ok bool
	if rep.SuccessfulRepayments, ok = out[0].(uint32); !ok {
		return rep, fmt.Errorf("malformed reputation result")
	}
	rep.TotalRepaidUSD, _ = out[1].(uint64)
	rep.GadEvents, _ = out[2].(uint32)
	rep.AccountAgeDays, _ = out[3].(uint32)
	return rep, nil
}

func (c *Client) readPositionMeta(ctx context.Context, key common.Hash) (uint64, uint64, error) {
	out, err := c.call(ctx, "positionMeta", key)
	if err != nil {
		return 0, 0, err
	}
	lastUpdate, ok1 := out[0].(uint64)
	lastGadCrank, ok2 := out[1].(uint64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("malformed positionMeta result")
	}
	return lastUpdate, lastGadCrank, nil
}

func (c *Client) readPrice(ctx context.Context, symbol string) (uint64, error) {
	out, err := c.call(ctx, "priceUsd", symbolTo32(symbol))
	if err != nil {
		return 0, err
	}
	price, ok := out[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("malformed price result")
	}
	return price, nil
}

// call performs a read-only eth_call against the vault and unpacks it.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.vaultABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := map[string]interface{}{
		"to":   c.contract.Hex(),
		"data": fmt.Sprintf("0x%x", data),
	}
	var result string
	if err := c.rpc.Client().CallContext(ctx, &result, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}

	out, err := c.vaultABI.Unpack(method, common.FromHex(result))
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// --- writes ---

func (c *Client) Deposit(ctx context.Context, asset string, amount uint64) error {
	return c.submit(ctx, "deposit", nil, symbolTo32(asset), amount)
}

func (c *Client) Withdraw(ctx context.Context, asset string, amount uint64) error {
	return c.submit(ctx, "withdraw", nil, symbolTo32(asset), amount)
}

func (c *Client) Borrow(ctx context.Context, asset string, amount uint64) error {
	return c.submit(ctx, "borrow", nil, symbolTo32(asset), amount)
}

func (c *Client) Repay(ctx context.Context, asset string, amount uint64) error {
	return c.submit(ctx, "repay", nil, symbolTo32(asset), amount)
}

func (c *Client) ConfigureAgent(ctx context.Context, cfg *models.AgentConfig) error {
	return c.submit(ctx, "configureAgent", nil,
		cfg.DailyBorrowLimitUSD,
		cfg.AutoRepayEnabled,
		cfg.AutoRepayThresholdBps,
		cfg.X402Enabled,
		cfg.X402DailyLimitUSD,
		cfg.AlertThresholdBps,
	)
}

func (c *Client) ConfigureGad(ctx context.Context, cfg *models.GadConfig) error {
	return c.submit(ctx, "configureGad", nil,
		cfg.Enabled,
		cfg.StartThresholdBps,
		cfg.StepSizeBps,
		uint64(cfg.MinIntervalSeconds),
	)
}

func (c *Client) ExecuteGadStep(ctx context.Context, owner string, stepSizeBps uint64) error {
	key := PositionKey(common.HexToAddress(owner))
	return c.submit(ctx, "executeGadStep", nil, key, stepSizeBps)
}

func (c *Client) AccrueInterest(ctx context.Context, owner string) error {
	key := PositionKey(common.HexToAddress(owner))
	return c.submit(ctx, "accrueInterest", nil, key)
}

func (c *Client) Pay(ctx context.Context, recipient, asset string, amount uint64, paymentID string, autoBorrow bool) error {
	return c.submit(ctx, "pay", nil,
		common.HexToAddress(recipient),
		symbolTo32(asset),
		amount,
		paymentIDTo32(paymentID),
		autoBorrow,
	)
}

// submit packs, signs, broadcasts and confirms a vault transaction under the
// bounded retry policy. Each attempt gets its own timeout; after the retries
// are exhausted the failure surfaces as a CallError — never silently dropped.
func (c *Client) submit(ctx context.Context, method string, value *big.Int, args ...interface{}) error {
	data, err := c.vaultABI.Pack(method, args...)
	if err != nil {
		return wrapCall(method, fmt.Errorf("pack: %w", err))
	}
	if value == nil {
		value = big.NewInt(0)
	}

	err = httputil.Retry(ctx, c.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		hash, err := c.signAndSend(attemptCtx, value, data)
		if err != nil {
			return err
		}
		return c.waitConfirmed(attemptCtx, hash)
	})
	return wrapCall(method, err)
}

func (c *Client) signAndSend(ctx context.Context, value *big.Int, data []byte) (common.Hash, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get gas price: %w", err)
	}

	to := c.contract
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.NewEIP155Signer(c.chainID)
	signed, err := types.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

// waitConfirmed polls for the transaction receipt. Success means the receipt
// landed with status 1; a reverted transaction is a hard failure, not a
// retryable one, but the retry wrapper treats both the same — the vault's
// actions are idempotent per nonce.
func (c *Client) waitConfirmed(ctx context.Context, hash common.Hash) error {
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return fmt.Errorf("tx %s reverted", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm tx %s: %w", hash.Hex(), ctx.Err())
		case <-time.After(receiptPollInterval):
		}
	}
}

func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	mul := new(big.Float).SetFloat64(c.gasMul)
	adjusted := new(big.Float).Mul(new(big.Float).SetInt(price), mul)
	result, _ := adjusted.Int(nil)
	return result, nil
}

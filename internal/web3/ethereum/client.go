package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/web3"
)

const defaultPollInterval = 2 * time.Second

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name         string
	RPCURL       string
	Notes        string
	PollInterval time.Duration
}

// Backend is the part of ethclient.Client the glue code depends on. The
// simulated backend's client satisfies it too.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client implements web3.Client for EVM compatible chains. Proof queries go
// through eth_getProof; headers through eth_getBlockByNumber.
type Client struct {
	name         string
	notes        string
	rpcClient    *gethrpc.Client
	eth          Backend
	proofs       *gethclient.Client
	chainID      *big.Int
	commit       func()
	pollInterval time.Duration
	mu           sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Client{
		name:         cfg.Name,
		notes:        cfg.Notes,
		rpcClient:    rpcClient,
		eth:          ethclient.NewClient(rpcClient),
		proofs:       gethclient.New(rpcClient),
		pollInterval: poll,
	}, nil
}

// LocalConfig wires a client to an in-process chain such as the go-ethereum
// simulated backend.
type LocalConfig struct {
	Name    string
	ChainID *big.Int
	Backend Backend
	// RPC serves eth_getProof. The client takes ownership and closes it.
	RPC *gethrpc.Client
	// Commit mines pending transactions; nil means blocks arrive on their own.
	Commit func()
}

// NewLocalClient builds a client over an already running chain. Transactions
// are mined through Commit as soon as they are sent.
func NewLocalClient(cfg LocalConfig) *Client {
	c := &Client{
		name:         cfg.Name,
		notes:        "local backend",
		rpcClient:    cfg.RPC,
		eth:          cfg.Backend,
		commit:       cfg.Commit,
		pollInterval: 10 * time.Millisecond,
	}
	if cfg.ChainID != nil {
		c.chainID = new(big.Int).Set(cfg.ChainID)
	}
	if cfg.RPC != nil {
		c.proofs = gethclient.New(cfg.RPC)
	}
	return c
}

// Name returns the chain name the client was registered under.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID returns the configured chain id, asking the node when unset.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

// LatestHeader reads the head block header.
func (c *Client) LatestHeader(ctx context.Context) (proofs.Header, error) {
	h, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return proofs.Header{}, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "eth_getBlockByNumber")
	}
	if h == nil || h.Number == nil {
		return proofs.Header{}, xerrors.New(xerrors.CodeProviderUnavailable, "node returned no head header")
	}
	return proofs.Header{
		Number:    h.Number.Uint64(),
		BlockHash: h.Hash(),
		StateRoot: h.Root,
	}, nil
}

// GetProof reads the account and storage proofs at the head block.
func (c *Client) GetProof(ctx context.Context, account common.Address, slots []common.Hash) (*proofs.AccountResult, error) {
	return c.getProof(ctx, account, slots, nil)
}

// GetProofAt reads the account and storage proofs at blockNumber.
func (c *Client) GetProofAt(ctx context.Context, account common.Address, slots []common.Hash, blockNumber uint64) (*proofs.AccountResult, error) {
	return c.getProof(ctx, account, slots, new(big.Int).SetUint64(blockNumber))
}

func (c *Client) getProof(ctx context.Context, account common.Address, slots []common.Hash, block *big.Int) (*proofs.AccountResult, error) {
	if c.proofs == nil {
		return nil, xerrors.New(xerrors.CodeProviderUnavailable, "client cannot serve eth_getProof")
	}
	keys := make([]string, len(slots))
	for i, s := range slots {
		keys[i] = s.Hex()
	}

	res, err := c.proofs.GetProof(ctx, account, keys, block)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "eth_getProof")
	}
	return convertProof(res, slots)
}

// convertProof decodes the hex nodes of an eth_getProof answer. Storage
// entries come back in request order and each must echo its requested key.
func convertProof(res *gethclient.AccountResult, slots []common.Hash) (*proofs.AccountResult, error) {
	if res == nil {
		return nil, xerrors.New(xerrors.CodeProviderUnavailable, "eth_getProof returned nothing")
	}
	accountProof, err := decodeNodes(res.AccountProof)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "decode account proof")
	}

	out := &proofs.AccountResult{
		Address:      res.Address,
		Nonce:        res.Nonce,
		Balance:      res.Balance,
		CodeHash:     res.CodeHash,
		StorageHash:  res.StorageHash,
		AccountProof: accountProof,
		Storage:      make(map[common.Hash]proofs.StorageResult, len(res.StorageProof)),
	}
	for i, entry := range res.StorageProof {
		if i >= len(slots) {
			break
		}
		if key := common.HexToHash(entry.Key); key != slots[i] {
			return nil, xerrors.New(xerrors.CodeProviderUnavailable,
				fmt.Sprintf("storage proof %d answers key %s", i, key.Hex()),
				xerrors.WithSlot(slots[i]))
		}
		nodes, err := decodeNodes(entry.Proof)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, fmt.Sprintf("decode storage proof %d", i))
		}
		var value common.Hash
		if entry.Value != nil {
			value = common.BigToHash(entry.Value)
		}
		out.Storage[slots[i]] = proofs.StorageResult{Key: slots[i], Value: value, Proof: nodes}
	}
	return out, nil
}

func decodeNodes(nodes []string) ([][]byte, error) {
	out := make([][]byte, len(nodes))
	for i, n := range nodes {
		raw, err := hexutil.Decode(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     "0x" + chainID.Text(16),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// DeployContract sends the contract creation transaction and waits for it
// to be mined.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (web3.DeploymentResult, error) {
	if auth == nil {
		return web3.DeploymentResult{}, errors.New("未提供交易签名器")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, errors.New("合约字节码不能为空")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	opts := *auth
	opts.Context = ctx
	address, tx, _, err := bind.DeployContract(&opts, parsedABI, bytecode, c.eth, params...)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("部署合约失败: %w", err)
	}
	if _, err := c.waitMined(ctx, tx.Hash()); err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("等待部署交易上链失败: %w", err)
	}
	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

// SendSignal calls sendSignal(signal) on the service and returns the mined
// receipt. A reverted transaction is an error.
func (c *Client) SendSignal(ctx context.Context, auth *bind.TransactOpts, service common.Address, signal common.Hash) (*coretypes.Receipt, error) {
	receipt, err := c.Transact(ctx, auth, service, web3.SignalServiceABI, "sendSignal", signal)
	if err != nil {
		return receipt, fmt.Errorf("发送信号失败: %w", err)
	}
	return receipt, nil
}

// Transact invokes method on contract, waits for the transaction to be
// mined and rejects reverted receipts. auth.Value carries any ether sent.
func (c *Client) Transact(ctx context.Context, auth *bind.TransactOpts, contract common.Address, abiJSON, method string, params ...any) (*coretypes.Receipt, error) {
	if auth == nil {
		return nil, errors.New("未提供交易签名器")
	}
	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	opts := *auth
	opts.Context = ctx
	bound := bind.NewBoundContract(contract, parsedABI, c.eth, c.eth, c.eth)
	tx, err := bound.Transact(&opts, method, params...)
	if err != nil {
		return nil, err
	}
	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("等待交易 %s 上链失败: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("交易 %s 执行失败", tx.Hash().Hex())
	}
	return receipt, nil
}

// WaitForConfirmations blocks until the receipt's block is buried under
// confirmations further blocks and is still canonical.
func (c *Client) WaitForConfirmations(ctx context.Context, receipt *coretypes.Receipt, confirmations uint64) error {
	if receipt == nil || receipt.BlockNumber == nil {
		return errors.New("交易回执缺少区块信息")
	}
	target := receipt.BlockNumber.Uint64() + confirmations

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("获取最新区块高度失败: %w", err)
		}
		if head >= target {
			header, err := c.eth.HeaderByNumber(ctx, receipt.BlockNumber)
			if err != nil {
				return fmt.Errorf("获取区块头失败: %w", err)
			}
			if header.Hash() != receipt.BlockHash {
				return fmt.Errorf("区块 %d 已被重组", receipt.BlockNumber.Uint64())
			}
			return nil
		}
		if c.commit != nil {
			c.commit()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	if c.commit != nil {
		c.commit()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if c.commit != nil {
				c.commit()
			}
		}
	}
}

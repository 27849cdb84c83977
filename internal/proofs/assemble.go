package proofs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/pkg/logger"
)

// Target names one slot of one account to prove.
type Target struct {
	Account common.Address   `json:"account"`
	Slot    slot.StorageSlot `json:"slot"`
}

// Observer receives assembly outcomes, typically for metrics. Outcome is
// "ok" or the error code of the failure.
type Observer interface {
	ObserveProof(outcome string, elapsed time.Duration)
	ObserveBatch(outcome string, size int)
}

// Assembler turns provider responses into SignalProofs.
type Assembler struct {
	provider StateProvider
	logger   *slog.Logger
	observer Observer
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver attaches an outcome observer.
func WithObserver(o Observer) Option {
	return func(a *Assembler) {
		a.observer = o
	}
}

// NewAssembler returns an assembler querying provider.
func NewAssembler(provider StateProvider, opts ...Option) *Assembler {
	a := &Assembler{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = logger.Named("proofs")
	}
	return a
}

// AssembleProof proves a single slot using a throwaway assembler.
func AssembleProof(ctx context.Context, provider StateProvider, account common.Address, s slot.StorageSlot) (SignalProof, error) {
	return NewAssembler(provider).Prove(ctx, account, s)
}

// AssembleMany proves every target and requires all proofs to share a block.
func AssembleMany(ctx context.Context, provider StateProvider, targets []Target) ([]SignalProof, error) {
	return NewAssembler(provider).ProveBatch(ctx, targets)
}

// Prove fetches the latest header and the inclusion proof of s in account
// and binds them. When the provider can pin a block, the proof is read at the
// header's block; otherwise both queries run concurrently. Either way the
// account proof's root node must hash to the header's state root.
func (a *Assembler) Prove(ctx context.Context, account common.Address, s slot.StorageSlot) (SignalProof, error) {
	start := time.Now()
	proof, err := a.prove(ctx, account, s)
	a.observeProof(err, time.Since(start))
	if err != nil {
		a.logger.Debug("assembly failed",
			slog.String("account", account.Hex()),
			slog.String("slot", s.Hex()),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.Any("error", err),
		)
		return SignalProof{}, err
	}
	logger.Audit().Info("signal proof assembled",
		slog.Uint64("block_number", proof.BlockNumber),
		slog.String("block_hash", proof.BlockHash.Hex()),
		slog.String("state_root", proof.StateRoot.Hex()),
		slog.String("account", account.Hex()),
		slog.String("slot", s.Hex()),
		slog.Int("account_nodes", len(proof.AccountProof)),
		slog.Int("storage_nodes", len(proof.StorageProof)),
	)
	return proof, nil
}

// ProveBatch proves each target in order. The batch fails as a whole with
// InconsistentBatch if any proof is anchored to a different block than the
// first one.
func (a *Assembler) ProveBatch(ctx context.Context, targets []Target) ([]SignalProof, error) {
	if len(targets) == 0 {
		err := xerrors.New(xerrors.CodeInvalidInput, "empty proof batch")
		a.observeBatch(err, 0)
		return nil, err
	}

	out := make([]SignalProof, 0, len(targets))
	for i, t := range targets {
		p, err := a.Prove(ctx, t.Account, t.Slot)
		if err != nil {
			a.observeBatch(err, len(targets))
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		out = append(out, p)
	}

	first := out[0]
	for i := 1; i < len(out); i++ {
		if out[i].SameBlock(first) {
			continue
		}
		err := xerrors.New(xerrors.CodeInconsistentBatch,
			fmt.Sprintf("proof %d anchored to block %d, batch anchored to block %d", i, out[i].BlockNumber, first.BlockNumber),
			xerrors.WithMetadata("index", strconv.Itoa(i)),
			xerrors.WithSlot(out[i].Slot),
			xerrors.WithMetadata("block_hash", out[i].BlockHash.Hex()),
			xerrors.WithMetadata("batch_block_hash", first.BlockHash.Hex()),
		)
		a.observeBatch(err, len(targets))
		a.logger.Warn("proof batch spans blocks", slog.Any("error", err))
		return nil, err
	}
	a.observeBatch(nil, len(targets))
	return out, nil
}

func (a *Assembler) prove(ctx context.Context, account common.Address, s slot.StorageSlot) (SignalProof, error) {
	if a.provider == nil {
		return SignalProof{}, xerrors.New(xerrors.CodeInvalidInput, "no state provider configured")
	}
	if err := ctx.Err(); err != nil {
		return SignalProof{}, unavailable(err, "context done before assembly", s)
	}

	header, res, err := a.fetch(ctx, account, s)
	if err != nil {
		return SignalProof{}, err
	}
	return bind(header, res, account, s)
}

func (a *Assembler) fetch(ctx context.Context, account common.Address, s slot.StorageSlot) (Header, *AccountResult, error) {
	keys := []common.Hash{s.Hash()}

	if pinned, ok := a.provider.(PinnedStateProvider); ok {
		header, err := pinned.LatestHeader(ctx)
		if err != nil {
			return Header{}, nil, classify(err, "fetch latest header", s)
		}
		res, err := pinned.GetProofAt(ctx, account, keys, header.Number)
		if err != nil {
			return Header{}, nil, classify(err, "fetch proof", s)
		}
		return header, res, nil
	}

	var (
		header Header
		res    *AccountResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := a.provider.LatestHeader(gctx)
		if err != nil {
			return classify(err, "fetch latest header", s)
		}
		header = h
		return nil
	})
	g.Go(func() error {
		r, err := a.provider.GetProof(gctx, account, keys)
		if err != nil {
			return classify(err, "fetch proof", s)
		}
		res = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return Header{}, nil, err
	}
	return header, res, nil
}

func bind(header Header, res *AccountResult, account common.Address, s slot.StorageSlot) (SignalProof, error) {
	if res == nil {
		return SignalProof{}, xerrors.New(xerrors.CodeProviderUnavailable, "provider returned no proof", xerrors.WithSlot(s))
	}
	if res.Address != (common.Address{}) && res.Address != account {
		return SignalProof{}, xerrors.New(xerrors.CodeProviderUnavailable,
			fmt.Sprintf("provider answered for %s, requested %s", res.Address.Hex(), account.Hex()),
			xerrors.WithSlot(s))
	}
	if res.Empty() {
		return SignalProof{}, xerrors.New(xerrors.CodeAccountNotFound, "",
			xerrors.WithMetadata("account", account.Hex()),
			xerrors.WithSlot(s))
	}
	if len(res.AccountProof) == 0 {
		return SignalProof{}, xerrors.New(xerrors.CodeProviderUnavailable, "account proof is empty", xerrors.WithSlot(s))
	}
	if root := crypto.Keccak256Hash(res.AccountProof[0]); root != header.StateRoot {
		return SignalProof{}, xerrors.New(xerrors.CodeRootMismatch, "",
			xerrors.WithSlot(s),
			xerrors.WithMetadata("block_number", strconv.FormatUint(header.Number, 10)),
			xerrors.WithMetadata("state_root", header.StateRoot.Hex()),
			xerrors.WithMetadata("proof_root", root.Hex()),
		)
	}
	entry, ok := res.Storage[s.Hash()]
	if !ok {
		return SignalProof{}, xerrors.New(xerrors.CodeProviderUnavailable, "no storage proof for requested slot", xerrors.WithSlot(s))
	}

	return SignalProof{
		BlockNumber:  header.Number,
		BlockHash:    header.BlockHash,
		StateRoot:    header.StateRoot,
		Account:      account,
		Slot:         s,
		Value:        entry.Value,
		StorageRoot:  res.StorageHash,
		AccountProof: copyNodes(res.AccountProof),
		StorageProof: copyNodes(entry.Proof),
	}, nil
}

// classify keeps AccountNotFound and ProviderUnavailable as reported and
// folds every other failure, including context errors, into
// ProviderUnavailable.
func classify(err error, stage string, s slot.StorageSlot) error {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeAccountNotFound:
		return xerrors.Wrap(xerrors.CodeAccountNotFound, err, stage, xerrors.WithSlot(s))
	default:
		return unavailable(err, stage, s)
	}
}

func unavailable(err error, stage string, s slot.StorageSlot) error {
	return xerrors.Wrap(xerrors.CodeProviderUnavailable, err, stage, xerrors.WithSlot(s))
}

func (a *Assembler) observeProof(err error, elapsed time.Duration) {
	if a == nil || a.observer == nil {
		return
	}
	a.observer.ObserveProof(outcome(err), elapsed)
}

func (a *Assembler) observeBatch(err error, size int) {
	if a == nil || a.observer == nil {
		return
	}
	a.observer.ObserveBatch(outcome(err), size)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(xerrors.CodeOf(err))
}

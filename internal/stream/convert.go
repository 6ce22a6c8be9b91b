package stream

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"tada-core/internal/decoder"
)

// FetchTransaction resolves one confirmed signature into an envelope
// with a single RPC round trip. Used by offline tooling; the live
// source has its own retrying fetch path.
func FetchTransaction(ctx context.Context, client *rpc.Client, sig solana.Signature) (*decoder.TransactionEnvelope, error) {
	maxVersion := uint64(0)
	res, err := client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	return buildEnvelope(sig.String(), res)
}

// buildEnvelope converts a fetched transaction into the decoder's
// envelope form. Account keys are assembled fee-payer-first with
// lookup-table loaded addresses appended (writable, then readonly),
// matching the index space the compiled instructions reference.
func buildEnvelope(signature string, res *rpc.GetTransactionResult) (*decoder.TransactionEnvelope, error) {
	if res == nil || res.Transaction == nil {
		return nil, fmt.Errorf("empty transaction result")
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	env := &decoder.TransactionEnvelope{
		Signature: signature,
		Slot:      res.Slot,
	}
	if res.BlockTime != nil {
		env.BlockTime = res.BlockTime.Time().Unix()
	}

	keys := make([]string, 0, len(tx.Message.AccountKeys))
	for _, k := range tx.Message.AccountKeys {
		keys = append(keys, k.String())
	}
	if res.Meta != nil {
		for _, k := range res.Meta.LoadedAddresses.Writable {
			keys = append(keys, k.String())
		}
		for _, k := range res.Meta.LoadedAddresses.ReadOnly {
			keys = append(keys, k.String())
		}
	}
	env.AccountKeys = keys

	env.Instructions = make([]decoder.CompiledInstruction, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		env.Instructions = append(env.Instructions, convertInstruction(ix))
	}

	if res.Meta != nil {
		env.LogMessages = res.Meta.LogMessages
		for _, group := range res.Meta.InnerInstructions {
			g := decoder.InnerInstructionGroup{Index: int(group.Index)}
			for _, ix := range group.Instructions {
				g.Instructions = append(g.Instructions, convertInstruction(ix))
			}
			env.InnerInstructions = append(env.InnerInstructions, g)
		}
		env.PreTokenBalances = convertTokenBalances(res.Meta.PreTokenBalances)
		env.PostTokenBalances = convertTokenBalances(res.Meta.PostTokenBalances)
	}
	return env, nil
}

func convertInstruction(ix solana.CompiledInstruction) decoder.CompiledInstruction {
	out := decoder.CompiledInstruction{
		ProgramIDIndex: int(ix.ProgramIDIndex),
		Accounts:       make([]int, len(ix.Accounts)),
		Data:           []byte(ix.Data),
	}
	for i, a := range ix.Accounts {
		out.Accounts[i] = int(a)
	}
	return out
}

func convertTokenBalances(balances []rpc.TokenBalance) []decoder.TokenBalance {
	if len(balances) == 0 {
		return nil
	}
	out := make([]decoder.TokenBalance, 0, len(balances))
	for _, tb := range balances {
		conv := decoder.TokenBalance{
			AccountIndex: int(tb.AccountIndex),
			Mint:         tb.Mint.String(),
		}
		if tb.Owner != nil {
			conv.Owner = tb.Owner.String()
		}
		if tb.UiTokenAmount != nil {
			conv.Amount = tb.UiTokenAmount.Amount
			conv.Decimals = int(tb.UiTokenAmount.Decimals)
		}
		out = append(out, conv)
	}
	return out
}

package stream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"tada-core/internal/decoder"
	"tada-core/internal/programs"
)

const (
	fetchRetries   = 3
	fetchBaseDelay = 500 * time.Millisecond
	reconnectDelay = 2 * time.Second
	dedupWindow    = 4096
)

// WSSource subscribes to log notifications for every monitored program
// and resolves each mentioned transaction into a full envelope. One
// logsSubscribe per program: public providers commonly reject
// multi-address mention filters.
type WSSource struct {
	rpcURL     string
	wsURL      string
	programs   []string // base58 program addresses
	commitment rpc.CommitmentType
	handler    Handler

	rpc   *rpc.Client
	dedup *sigCache
}

func NewWSSource(rpcURL, wsURL string, handler Handler) *WSSource {
	addrs := make([]string, 0, len(programs.Catalog))
	for _, p := range programs.Catalog {
		addrs = append(addrs, p.Address)
	}
	return &WSSource{
		rpcURL:     rpcURL,
		wsURL:      wsURL,
		programs:   addrs,
		commitment: rpc.CommitmentConfirmed,
		handler:    handler,
		rpc:        rpc.New(rpcURL),
		dedup:      newSigCache(dedupWindow),
	}
}

// Run connects, subscribes and pumps notifications until ctx ends.
// Connection drops trigger a full reconnect with a short delay; the
// signature dedup window spans reconnects so a replayed notification is
// not processed twice.
func (s *WSSource) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[stream] websocket session ended: %v; reconnecting in %s", err, reconnectDelay)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *WSSource) runOnce(ctx context.Context) error {
	client, err := ws.Connect(ctx, s.wsURL)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.wsURL, err)
	}
	defer client.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifs := make(chan *ws.LogResult, 256)
	errs := make(chan error, len(s.programs))

	for _, addr := range s.programs {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return fmt.Errorf("invalid program address %s: %w", addr, err)
		}
		sub, err := client.LogsSubscribeMentions(pk, s.commitment)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", addr, err)
		}
		log.Printf("[stream] subscribed to program %s", addr)

		go func(sub *ws.LogSubscription, addr string) {
			defer sub.Unsubscribe()
			for {
				got, err := sub.Recv(sessionCtx)
				if err != nil {
					select {
					case errs <- fmt.Errorf("recv %s: %w", addr, err):
					default:
					}
					return
				}
				if got == nil {
					continue
				}
				select {
				case notifs <- got:
				case <-sessionCtx.Done():
					return
				}
			}
		}(sub, addr)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case got := <-notifs:
			s.processNotification(ctx, got)
		}
	}
}

func (s *WSSource) processNotification(ctx context.Context, got *ws.LogResult) {
	if got.Value.Err != nil {
		return // failed transaction
	}
	sig := got.Value.Signature.String()
	if s.dedup.Seen(sig) {
		return
	}

	env, err := s.fetchEnvelope(ctx, got.Value.Signature)
	if err != nil {
		log.Printf("[stream] dropping tx %s: %v", sig, err)
		return
	}
	if env.Slot == 0 {
		env.Slot = got.Context.Slot
	}
	s.handler(ctx, env)
}

// fetchEnvelope pulls the full transaction over RPC with exponential
// backoff. Log notifications carry no account keys or inner
// instructions, so the fetch is mandatory.
func (s *WSSource) fetchEnvelope(ctx context.Context, sig solana.Signature) (*decoder.TransactionEnvelope, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     s.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			delay := fetchBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		res, err := s.rpc.GetTransaction(ctx, sig, opts)
		if err == nil {
			return buildEnvelope(sig.String(), res)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[stream] GetTransaction %s attempt %d/%d failed: %v", sig, attempt+1, fetchRetries, err)
	}
	return nil, fmt.Errorf("after %d attempts: %w", fetchRetries, lastErr)
}

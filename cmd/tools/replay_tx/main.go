package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"tada-core/internal/decoder"
	"tada-core/internal/schema"
	"tada-core/internal/stream"
)

// Replays one confirmed transaction through the decoder layer and
// prints every event it yields. Handy for checking what a pipeline
// would see for a given signature.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <signature>\n", os.Args[0])
		os.Exit(2)
	}
	sig, err := solana.SignatureFromBase58(os.Args[1])
	if err != nil {
		log.Fatalf("Invalid signature: %v", err)
	}

	rpcURL := rpc.MainNetBeta_RPC
	if url := os.Getenv("SOLANA_RPC_URL"); url != "" {
		rpcURL = url
	}

	schemas, err := schema.Load()
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	registry, err := decoder.NewDefaultRegistry(schemas)
	if err != nil {
		log.Fatalf("Failed to build decoder registry: %v", err)
	}

	ctx := context.Background()
	env, err := stream.FetchTransaction(ctx, rpc.New(rpcURL), sig)
	if err != nil {
		log.Fatalf("Failed to fetch transaction: %v", err)
	}

	events := registry.Parse(env)
	fmt.Printf("Transaction %s: slot=%d accounts=%d log_lines=%d -> %d event(s)\n",
		sig, env.Slot, len(env.AccountKeys), len(env.LogMessages), len(events))
	for _, ev := range events {
		out, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode event %s: %v", ev.ID, err)
		}
		fmt.Println(string(out))
	}
}

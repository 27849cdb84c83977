package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SignalProof-Chain/sdk/go/signalproof"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "signald base url")
	account := flag.String("account", "0x5FbDB2315678afecb367f032d93F642f64180aa3", "signal service address")
	sender := flag.String("sender", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "signal sender")
	signal := flag.String("signal", "0x01", "signal value")
	chainID := flag.String("chain-id", "1337", "chain id for v4 slots")
	token := flag.String("token", os.Getenv("SIGNALD_TOKEN"), "api bearer token")
	flag.Parse()

	client, err := signalproof.NewClient(*baseURL, nil)
	if err != nil {
		fail(err)
	}
	client.SetAccessToken(*token)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	key := signalproof.Key{
		Signal:    common.HexToHash(*signal),
		Sender:    common.HexToAddress(*sender),
		ChainID:   *chainID,
		Namespace: "generic-signal",
	}
	slots, err := client.DeriveSlots(ctx, "v4", []signalproof.Key{key})
	if err != nil {
		fail(err)
	}
	fmt.Printf("slot %s\n", slots[0].Slot.Hex())

	submitted, err := client.SubmitProofJob(ctx, signalproof.ProofRequest{
		Account: common.HexToAddress(*account),
		Scheme:  "v4",
		Keys:    []signalproof.Key{key},
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", submitted.ID, submitted.Status)

	done, err := client.WaitForProofJob(ctx, submitted.ID, 500*time.Millisecond)
	if err != nil {
		fail(err)
	}
	if done.Status == signalproof.StatusFailed {
		fail(fmt.Errorf("job failed: %s %s", done.ErrorCode, done.LastError))
	}
	for _, p := range done.Proofs {
		fmt.Printf("block %d state root %s value %s\n", p.BlockNumber, p.StateRoot.Hex(), p.Value.Hex())
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"noncepool/core"
)

// handleCLICommands dispatches the thin operator-facing admin command
// set — stats, rotate-validator, submit-block — against the on-disk
// chain data directly, the same direct-BadgerDB-access shape the
// teacher CLI used for its balance command. Anything else (including no
// subcommand) falls through to running the daemon.
func handleCLICommands() {
	if len(os.Args) < 2 {
		return
	}

	switch os.Args[1] {
	case "stats":
		handleStatsCommand()
	case "rotate-validator":
		handleRotateValidatorCommand()
	case "submit-block":
		handleSubmitBlockCommand()
	case "help":
		printHelp()
	default:
		return
	}

	os.Exit(0)
}

func handleStatsCommand() {
	cmd := flag.NewFlagSet("stats", flag.ExitOnError)
	dataDir := cmd.String("data-dir", "data", "Directory containing chain data")
	cmd.Parse(os.Args[2:])

	store, err := core.OpenBadgerStore(*dataDir)
	if err != nil {
		fmt.Printf("❌ Cannot access chain data at %s: %v\n", *dataDir, err)
		fmt.Printf("💡 Stop the daemon first, or point -data-dir at a different directory.\n")
		os.Exit(1)
	}
	defer store.Close()

	tipHeight, err := store.GetTipHeight()
	if err != nil {
		fmt.Printf("❌ No chain data found at %s\n", *dataDir)
		os.Exit(1)
	}

	block, err := store.GetBlock(tipHeight)
	if err != nil {
		log.Fatalf("Failed to load tip block #%d: %v", tipHeight, err)
	}

	validator, _ := store.GetValidator()
	if validator == "" {
		validator = "(unset)"
	}

	fmt.Printf("📊 Chain stats\n")
	fmt.Printf("   Height:     %d\n", tipHeight)
	fmt.Printf("   Tip hash:   %s\n", block.HashHex())
	fmt.Printf("   Difficulty: %d\n", block.Header.Difficulty)
	fmt.Printf("   Validator:  %s\n", validator)
}

func handleRotateValidatorCommand() {
	cmd := flag.NewFlagSet("rotate-validator", flag.ExitOnError)
	dataDir := cmd.String("data-dir", "data", "Directory containing chain data")
	caller := cmd.String("caller", "", "Current validator identity authorizing the rotation")
	newValidator := cmd.String("new", "", "New validator identity")
	cmd.Parse(os.Args[2:])

	if *newValidator == "" {
		fmt.Println("Usage: noncepoold rotate-validator -caller=<id> -new=<id> [-data-dir=<path>]")
		os.Exit(1)
	}

	store, err := core.OpenBadgerStore(*dataDir)
	if err != nil {
		fmt.Printf("❌ Cannot access chain data at %s: %v\n", *dataDir, err)
		os.Exit(1)
	}
	defer store.Close()

	current, err := store.GetValidator()
	if err != nil {
		log.Fatalf("Failed to read current validator: %v", err)
	}

	// Self-authorized rotation, the same caller check as
	// core.Authority.SetValidator, with one difference: an empty current
	// validator means nothing has claimed the role yet, so any caller may
	// install the -new identity.
	if current != "" && current != *caller {
		fmt.Printf("❌ %s is not the current validator (%s); rotation refused\n", *caller, current)
		os.Exit(1)
	}

	if err := store.PutValidator(*newValidator); err != nil {
		log.Fatalf("Failed to persist new validator: %v", err)
	}

	fmt.Printf("✅ Validator rotated: %s -> %s\n", current, *newValidator)
}

func handleSubmitBlockCommand() {
	cmd := flag.NewFlagSet("submit-block", flag.ExitOnError)
	dataDir := cmd.String("data-dir", "data", "Directory containing chain data")
	caller := cmd.String("caller", "", "Validator identity authorizing the submission")
	hash := cmd.String("hash", "", "New tip block hash (hex)")
	difficulty := cmd.Uint("difficulty", 0, "New difficulty, if this submission retargets (0 = unchanged)")
	cmd.Parse(os.Args[2:])

	if *hash == "" {
		fmt.Println("Usage: noncepoold submit-block -caller=<id> -hash=<hex> [-difficulty=<n>] [-data-dir=<path>]")
		os.Exit(1)
	}

	store, err := core.OpenBadgerStore(*dataDir)
	if err != nil {
		fmt.Printf("❌ Cannot access chain data at %s: %v\n", *dataDir, err)
		os.Exit(1)
	}
	defer store.Close()

	validator, err := store.GetValidator()
	if err != nil {
		log.Fatalf("Failed to read validator: %v", err)
	}
	if validator == "" {
		fmt.Println("❌ No validator has been set yet; run rotate-validator first")
		os.Exit(1)
	}
	if validator != *caller {
		fmt.Printf("❌ %s is not the current validator (%s); submission refused\n", *caller, validator)
		os.Exit(1)
	}

	tip, err := store.GetAuthorityTip()
	if err != nil {
		log.Fatalf("Failed to read authority tip: %v", err)
	}

	tip.Height++
	tip.BlockHash = *hash
	if *difficulty != 0 {
		tip.Difficulty = uint32(*difficulty)
	}

	if err := store.PutAuthorityTip(tip); err != nil {
		log.Fatalf("Failed to persist authority tip: %v", err)
	}

	fmt.Printf("✅ Authority tip advanced: height=%d hash=%s difficulty=%d\n", tip.Height, tip.BlockHash, tip.Difficulty)
}

func printHelp() {
	fmt.Println("noncepoold - distributed proof-of-work mining coordinator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  noncepoold [flags]                       - Run as daemon")
	fmt.Println("  noncepoold stats [flags]                 - Show chain height/tip/validator")
	fmt.Println("  noncepoold rotate-validator [flags]       - Rotate the authorized validator")
	fmt.Println("  noncepoold submit-block [flags]           - Advance the authority tip record")
	fmt.Println("  noncepoold help                           - Show this help")
	fmt.Println()
	fmt.Println("Daemon flags:")
	fmt.Println("  --data-dir=<path>                - Data directory")
	fmt.Println("  --genesis-difficulty=<n>         - Genesis block difficulty")
	fmt.Println("  --p2p-port=<port>                - P2P listen port")
	fmt.Println("  --peer-multiaddr=<addr>          - Peer to connect to")
	fmt.Println("  --workers=<n>                    - Number of in-process worker slots")
	fmt.Println("  --miner-address=<id>             - Miner identity recorded on mined blocks")
	fmt.Println("  --validator=<id>                 - Validator identity for this node")
	fmt.Println()
	fmt.Println("rotate-validator flags:")
	fmt.Println("  --caller=<id>                    - Current validator identity")
	fmt.Println("  --new=<id>                       - New validator identity")
	fmt.Println()
	fmt.Println("submit-block flags:")
	fmt.Println("  --caller=<id>                    - Validator identity authorizing the call")
	fmt.Println("  --hash=<hex>                     - New tip block hash")
	fmt.Println("  --difficulty=<n>                 - New difficulty (0 = unchanged)")
}

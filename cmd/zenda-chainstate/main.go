// zenda-chainstate inspects a persistent chainstate database: aggregate
// stats and per-sidechain dumps.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"

	"zenda.dev/node/node/store"
)

func main() {
	dbPath := flag.String("db", "", "path to the chainstate kv database")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: zenda-chainstate -db <path> <stats|sidechains>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dbPath == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "stats":
		stats, _ := db.GetStats()
		fmt.Printf("best block   %s\n", hex.EncodeToString(stats.BestBlock[:]))
		fmt.Printf("coins        %d\n", stats.Coins)
		fmt.Printf("tx outputs   %d\n", stats.TxOutputs)
		fmt.Printf("total amount %d\n", stats.TotalAmount)
		fmt.Printf("sidechains   %d\n", stats.Sidechains)

	case "sidechains":
		ids := db.GetScIds()
		sorted := make([][32]byte, 0, len(ids))
		for scId := range ids {
			sorted = append(sorted, scId)
		}
		sort.Slice(sorted, func(i, j int) bool {
			return hex.EncodeToString(sorted[i][:]) < hex.EncodeToString(sorted[j][:])
		})
		for _, scId := range sorted {
			sc, ok := db.GetSidechain(scId)
			if !ok {
				continue
			}
			fmt.Printf("-- sidechain %s --\n", hex.EncodeToString(scId[:]))
			fmt.Printf("  state                %s\n", sc.CurrentState)
			fmt.Printf("  balance              %d\n", sc.Balance)
			fmt.Printf("  created in block     %s (h=%d)\n",
				hex.EncodeToString(sc.CreationBlockHash[:]), sc.CreationBlockHeight)
			fmt.Printf("  creation tx          %s\n", hex.EncodeToString(sc.CreationTxHash[:]))
			fmt.Printf("  epoch length         %d\n", sc.CreationData.WithdrawalEpochLength)
			fmt.Printf("  top cert epoch       %d\n", sc.PrevBlockTopQualityCertReferencedEpoch)
			fmt.Printf("  top cert quality     %d\n", sc.PrevBlockTopQualityCertQuality)
			fmt.Printf("  top cert bwt amount  %d\n", sc.PrevBlockTopQualityCertBwtAmount)
			fmt.Printf("  immature entries     %d\n", len(sc.ImmatureAmounts))
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/proxygov/pkg/crypto"
)

var (
	keygenCount int
	keygenJSON  bool
)

type keyPair struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate secp256k1 signer keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]keyPair, 0, keygenCount)
		for i := 0; i < keygenCount; i++ {
			s, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			keys = append(keys, keyPair{Address: s.Address().Hex(), PrivateKey: s.PrivateKeyHex()})
		}

		out := cmd.OutOrStdout()
		if keygenJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(keys)
		}
		for i, k := range keys {
			fmt.Fprintf(out, "================ Key %d ================\n", i+1)
			fmt.Fprintf(out, "Address:     %s\n", k.Address)
			fmt.Fprintf(out, "Private Key: %s (KEEP SECRET!)\n", k.PrivateKey)
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVarP(&keygenCount, "count", "n", 1, "number of keys to generate")
	keygenCmd.Flags().BoolVar(&keygenJSON, "json", false, "print keys as JSON")
	rootCmd.AddCommand(keygenCmd)
}

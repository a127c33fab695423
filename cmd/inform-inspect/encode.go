package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	inform "github.com/dmke/unispi"
)

var (
	encodeMAC   string
	encodeFlags []string
	encodeKey   string
	encodeOut   string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <payload.json>",
	Short: "Build an inform packet from a JSON payload",
	Long: `Build an inform packet from a JSON payload ("-" reads stdin).

Examples:
  inform-inspect encode --mac f0:9f:c2:79:63:90 --flags EncryptedGCM,CompressedSnappy -o pkt.bin inform.json
  inform-inspect encode --mac f0:9f:c2:79:63:90 --flags Encrypted --key e2c930683af3945e4d0d58d37a78c2a6 -o pkt.bin inform.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringVar(&encodeMAC, "mac", "", "device MAC address (required)")
	encodeCmd.Flags().StringSliceVar(&encodeFlags, "flags", nil,
		"packet flags: Encrypted, Compressed, CompressedSnappy, EncryptedGCM")
	encodeCmd.Flags().StringVarP(&encodeKey, "key", "k", inform.DefaultKey, "hex encoded AES key")
	encodeCmd.Flags().StringVarP(&encodeOut, "out", "o", "", "output file (default stdout)")
	encodeCmd.MarkFlagRequired("mac")
}

func runEncode(cmd *cobra.Command, args []string) error {
	mac, err := net.ParseMAC(encodeMAC)
	if err != nil || len(mac) != 6 {
		return fmt.Errorf("invalid MAC address %q", encodeMAC)
	}
	flags, err := parseFlagNames(encodeFlags)
	if err != nil {
		return err
	}
	key, err := inform.ParseKey(encodeKey)
	if err != nil {
		return err
	}

	payload, err := readInput(args[0])
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%s: payload is not valid JSON", args[0])
	}

	pkt, err := inform.Encode(inform.EncodeOptions{MAC: mac, Flags: flags, DataType: inform.JSON}, payload, key)
	if err != nil {
		return err
	}

	if encodeOut == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), hex.Dump(pkt))
		return err
	}
	return os.WriteFile(encodeOut, pkt, 0o644)
}

func parseFlagNames(names []string) (inform.Flags, error) {
	var f inform.Flags
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case "Encrypted":
			f |= inform.Encrypted
		case "Compressed":
			f |= inform.Compressed
		case "CompressedSnappy", "SnappyCompressed":
			f |= inform.SnappyCompressed
		case "EncryptedGCM":
			f |= inform.EncryptedGCM
		case "":
		default:
			return 0, fmt.Errorf("unknown flag: %s", name)
		}
	}
	return f, nil
}

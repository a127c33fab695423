package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	inform "github.com/dmke/unispi"
	"github.com/dmke/unispi/internal/keystore"
)

var (
	decodeKey      string
	decodeKeysFile string
	decodeFormat   string
	decodeWorkers  int
)

var decodeCmd = &cobra.Command{
	Use:   "decode <packet>...",
	Short: "Decode inform packet files",
	Long: `Decode one or more inform packet files ("-" reads stdin).

The key is taken from --key, else looked up by MAC address in
--keys-file, else the default key is used.

Formats:
  json  header, payload, key and warnings as JSON (default)
  yaml  the same as YAML
  raw   the decrypted and decompressed payload; non-JSON data is hex dumped`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeKey, "key", "k", "", "hex encoded AES key (32, 48 or 64 characters)")
	decodeCmd.Flags().StringVar(&decodeKeysFile, "keys-file", "", "key file with one {\"mac\":..,\"x_authkey\":..} object per line")
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "json", "output format: json, yaml or raw")
	decodeCmd.Flags().IntVarP(&decodeWorkers, "workers", "w", 0, "parallel decoders (default from config)")
}

// output adds the error text to a Result, which otherwise omits it.
type output struct {
	File          string `json:"file" yaml:"file"`
	inform.Result `yaml:",inline"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	keys, err := decodeResolver()
	if err != nil {
		return err
	}

	packets := make([][]byte, len(args))
	for i, name := range args {
		if packets[i], err = readInput(name); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if decodeFormat == "raw" {
		for i := range packets {
			if err := printRaw(ctx, out, keys, packets[i]); err != nil {
				return fmt.Errorf("%s: %w", args[i], err)
			}
		}
		return nil
	}

	workers := decodeWorkers
	if workers <= 0 {
		workers = cfg.DecodeWorkers
	}
	dec := inform.NewDecoder(keys,
		inform.WithLogger(logrus.StandardLogger()),
		inform.WithMaxPayloadSize(cfg.MaxPayloadSize))

	failed := 0
	for i, res := range dec.DecodeAll(ctx, packets, workers) {
		o := output{File: args[i], Result: *res}
		if res.Err != nil {
			o.Error = res.Err.Error()
			failed++
		}
		if err := printResult(out, o); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d packets could not be decoded", failed, len(packets))
	}
	return nil
}

func decodeResolver() (inform.KeyResolver, error) {
	if decodeKey != "" {
		if _, err := inform.ParseKey(decodeKey); err != nil {
			return nil, fmt.Errorf("invalid --key: %w", err)
		}
		return inform.KeyResolverFunc(func(context.Context, string) (string, bool) {
			return decodeKey, true
		}), nil
	}
	if decodeKeysFile != "" {
		return keystore.Open(decodeKeysFile, logrus.StandardLogger())
	}
	return nil, nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func printResult(w io.Writer, o output) error {
	switch decodeFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	case "yaml":
		o.Data = yamlNumbers(o.Data)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(o); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format: %s (must be json, yaml or raw)", decodeFormat)
}

// yamlNumbers replaces the json.Number values in v by plain YAML scalars.
// yaml.v3 would otherwise quote them as strings. The digits are kept
// as they are, so integers beyond 2^53 stay exact.
func yamlNumbers(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(string(v), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(v)}
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			m[k] = yamlNumbers(e)
		}
		return m
	case []interface{}:
		a := make([]interface{}, len(v))
		for i, e := range v {
			a[i] = yamlNumbers(e)
		}
		return a
	}
	return v
}

// printRaw prints the decrypted and decompressed payload, without
// interpreting it as JSON.
func printRaw(ctx context.Context, w io.Writer, keys inform.KeyResolver, packet []byte) error {
	pkt, err := inform.ParsePacket(packet)
	if err != nil {
		return fmt.Errorf("cannot read packet: %w", err)
	}
	if len(pkt.Payload) == 0 {
		logrus.Warn("no payload found")
		return nil
	}

	hexKey := inform.DefaultKey
	if keys != nil {
		if k, ok := keys.ResolveKey(ctx, pkt.Header.MAC); ok && k != "" {
			hexKey = k
		}
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return fmt.Errorf("%w: %v", inform.ErrKeyFormatInvalid, err)
	}

	data, err := pkt.Data(key)
	if err != nil {
		return fmt.Errorf("error decrypting packet: %w", err)
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		_, err = fmt.Fprintln(w, string(data))
	} else {
		_, err = fmt.Fprint(w, hex.Dump(data))
	}
	return err
}

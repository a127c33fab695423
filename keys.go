package inform

import (
	"context"
	"strings"
)

const (
	// DefaultKey is the key of devices which have not been adopted yet,
	// md5("ubnt").
	DefaultKey = "ba86f2bbe107c7c57eb5f2690775c712"

	// DefaultKeyMarker is reported as Result.KeyUsed when DefaultKey
	// was applied.
	DefaultKeyMarker = "(default)"
)

// KeyResolver maps a device MAC address (lower case, colon separated)
// to its hex encoded authentication key. Unknown devices are reported
// with ok == false, which is not an error.
type KeyResolver interface {
	ResolveKey(ctx context.Context, mac string) (hexKey string, ok bool)
}

// KeyResolverFunc adapts a function to the KeyResolver interface.
type KeyResolverFunc func(ctx context.Context, mac string) (string, bool)

func (f KeyResolverFunc) ResolveKey(ctx context.Context, mac string) (string, bool) {
	return f(ctx, mac)
}

// StaticKeys is an in-memory KeyResolver. Keys are looked up by lower
// case MAC address.
type StaticKeys map[string]string

func (k StaticKeys) ResolveKey(_ context.Context, mac string) (string, bool) {
	key, ok := k[strings.ToLower(mac)]
	return key, ok
}

// resolveKey returns the key to apply and how to report it.
func resolveKey(ctx context.Context, keys KeyResolver, mac string) (hexKey, used string) {
	if keys != nil {
		if k, ok := keys.ResolveKey(ctx, mac); ok && k != "" {
			hexKey = k
		}
	}
	if hexKey == "" || strings.EqualFold(hexKey, DefaultKey) {
		return DefaultKey, DefaultKeyMarker
	}
	return hexKey, hexKey
}

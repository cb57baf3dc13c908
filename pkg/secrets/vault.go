// Package secrets resolves "vault:<mount>/<path>#<key>" configuration values
// through HashiCorp Vault's KV v2 engine.
//
// The client reads VAULT_ADDR and VAULT_TOKEN from the environment. It is
// only constructed when the configuration actually contains a reference, so
// deployments without Vault never touch it.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// Vault is safe for concurrent use.
type Vault struct {
	api *vault.Client
}

func NewVault() (*Vault, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}
	return &Vault{api: apiCli}, nil
}

// Resolve fetches key from the KV v2 secret at path, given as "path#key".
func (v *Vault) Resolve(ctx context.Context, ref string) (string, error) {
	secretPath, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}

	mount, rel := splitMount(secretPath)
	sec, err := v.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}
	return sval, nil
}

// ParseRef splits "mount/path#key".
func ParseRef(ref string) (secretPath, key string, err error) {
	secretPath, key, found := strings.Cut(ref, "#")
	if !found || secretPath == "" || key == "" {
		return "", "", errors.New("secret reference must look like <mount>/<path>#<key>")
	}
	if !strings.Contains(secretPath, "/") {
		return "", "", fmt.Errorf("secret path %q has no mount", secretPath)
	}
	return secretPath, key, nil
}

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

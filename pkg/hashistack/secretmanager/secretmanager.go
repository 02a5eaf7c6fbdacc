package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault builds a Vault client from the standard VAULT_* environment
// variables. Deployments without Vault simply get no client and fall back to
// plain configuration values.
func ProvideVault() (*vault.Client, error) {
	if os.Getenv("VAULT_ADDR") == "" {
		zap.L().Info("[Vault] VAULT_ADDR not set, skipping secret manager")
		return nil, nil
	}

	return vault.New(
		vault.WithEnvironment(),
	)
}

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/parapet-labs/parapet/pkg/config"
	"github.com/parapet-labs/parapet/pkg/crypto"
)

var initFlags struct {
	force    bool
	humanID  string
	agentID  string
	issuerID string
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config, dev signing seed and trust store",
	Long: `Creates parapet.yaml, a random dev seed, and a trust store holding the
derived public keys for the issuer, one human reviewer and one trusted
agent verifier. The seed file is for development only; point the signer
at real key material before granting leases anywhere that matters.`,
	RunE: runInit,
}

func init() {
	f := initCmd.Flags()
	f.BoolVar(&initFlags.force, "force", false, "Overwrite existing files")
	f.StringVar(&initFlags.humanID, "human", "human-1", "Human cosigner key id")
	f.StringVar(&initFlags.agentID, "agent", "agent-1", "Trusted agent verifier key id")
	f.StringVar(&initFlags.issuerID, "issuer", "issuer-1", "Issuing authority key id")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	for _, p := range []string{cfgFile, seedFile} {
		if _, err := os.Stat(p); err == nil && !initFlags.force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", p)
		}
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return err
	}
	if err := os.WriteFile(seedFile, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return err
	}

	keys := map[string]string{}
	for _, kid := range []string{initFlags.issuerID, initFlags.humanID, initFlags.agentID} {
		prov, err := crypto.DeriveKeyProvider(seed, kid)
		if err != nil {
			return err
		}
		keys[kid] = hex.EncodeToString(prov.Public())
	}

	cfg := config.Default()
	cfg.TrustedVerifiers = []string{initFlags.agentID}

	if _, err := os.Stat(cfg.TrustStorePath); err == nil && !initFlags.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.TrustStorePath)
	}
	trustRaw, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.TrustStorePath, append(trustRaw, '\n'), 0o644); err != nil {
		return err
	}

	cfgRaw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgFile, cfgRaw, 0o644); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return err
	}

	return emit(map[string]any{
		"config":      cfgFile,
		"seed_file":   seedFile,
		"trust_store": cfg.TrustStorePath,
		"data_root":   cfg.DataRoot,
		"key_ids":     []string{initFlags.issuerID, initFlags.humanID, initFlags.agentID},
	})
}

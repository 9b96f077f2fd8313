package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parapet-labs/parapet/pkg/audit"
	"github.com/parapet-labs/parapet/pkg/config"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/crypto"
	"github.com/parapet-labs/parapet/pkg/store"
)

var (
	cfgFile  string
	seedFile string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "parapet",
	Short: "Capability-lease governance for agent-proposed changes",
	Long: `parapet governs self-modification: an agent states an intent, builds a
size-bounded reversible proposal, passes a security scan and human
review, and receives a two-key signed lease before anything executes
under resource limits with a full audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command and maps the resulting error kind to its
// stable exit code. The failure status object goes to stdout like every
// other command output; stderr stays reserved for diagnostics.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := contracts.ExitCode(err)
		out, _ := json.Marshal(map[string]any{"error": err.Error(), "exit_code": code})
		fmt.Println(string(out))
		os.Exit(code)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "parapet.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&seedFile, "seed-file", "dev.seed", "Hex-encoded dev signing seed")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostics on stderr")
}

// runtime bundles the handles every subcommand needs.
type runtime struct {
	cfg   *config.Config
	store *store.Store
	trail *audit.Trail
}

func openRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.DataRoot)
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:   cfg,
		store: s,
		trail: audit.NewTrail(s, audit.DefaultLogPath),
	}, nil
}

func (r *runtime) trustStore() (*crypto.TrustStore, error) {
	return crypto.LoadTrustStore(r.cfg.TrustStorePath)
}

// recordDenied appends an attempted-but-denied action to the trail so
// rejections are visible there, not only successes. A trail failure must
// not mask the denial itself.
func (r *runtime) recordDenied(actor, kind, subject string, denied error) {
	if err := r.trail.Record(actor, kind, subject, map[string]any{"error": denied.Error()}); err != nil {
		slog.Warn("audit append failed", "event_kind", kind, "subject", subject, "error", err)
	}
}

// loadSeed reads the signing seed from PARAPET_SEED or the seed file.
// Production deployments would back Signer with an HSM provider instead;
// the derived-key path exists for dev and test environments.
func loadSeed() ([]byte, error) {
	if v := os.Getenv("PARAPET_SEED"); v != "" {
		return hex.DecodeString(v)
	}
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("no PARAPET_SEED and no seed file: %w", err)
	}
	return hex.DecodeString(strings.TrimSpace(string(raw)))
}

// signerFor derives the role-scoped signing key for kid.
func signerFor(kid string) (*crypto.Signer, error) {
	seed, err := loadSeed()
	if err != nil {
		return nil, err
	}
	prov, err := crypto.DeriveKeyProvider(seed, kid)
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(prov, kid), nil
}

// emit prints the command's single JSON status object to stdout.
func emit(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

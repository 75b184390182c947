package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/hubuum-bff/internal/util"
	"github.com/jmcleod/hubuum-bff/session"
	"github.com/jmcleod/hubuum-bff/storage"
)

type storeCheckResult struct {
	StoreURL string        `json:"store_url,omitempty"`
	Mode     string        `json:"mode"`
	Valid    bool          `json:"valid"`
	Checks   []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

func (r *storeCheckResult) pass(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "pass", Detail: detail})
}

func (r *storeCheckResult) fail(name string, err error) {
	r.Valid = false
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "fail", Detail: err.Error()})
}

// probeStore walks a throwaway record through the whole store lifecycle.
// It stops at the first failing step.
func probeStore(ctx context.Context, store storage.Store) storeCheckResult {
	result := storeCheckResult{Mode: string(session.ModeDistributed), Valid: true}

	id, err := util.RandomToken(16)
	if err != nil {
		result.fail("probe_id", err)
		return result
	}
	id = "probe-" + id
	now := time.Now().UTC()
	rec := storage.Record{Token: "probe", Username: "store-check", CreatedAt: now, LastSeen: now}

	if err := store.Create(ctx, id, rec); err != nil {
		result.fail("write", err)
		return result
	}
	result.pass("write", "")

	got, ok, err := store.Get(ctx, id)
	switch {
	case err != nil:
		result.fail("read", err)
		return result
	case !ok:
		result.fail("read", fmt.Errorf("record %s missing right after write", id))
		return result
	case got.Token != rec.Token || got.Username != rec.Username:
		result.fail("read", fmt.Errorf("record %s came back altered", id))
		return result
	}
	result.pass("read", "")

	got.LastSeen = time.Now().UTC()
	if err := store.Touch(ctx, id, got); err != nil {
		result.fail("touch", err)
		return result
	}
	result.pass("touch", "")

	if err := store.Destroy(ctx, id); err != nil {
		result.fail("destroy", err)
		return result
	}
	if _, ok, err := store.Get(ctx, id); err != nil {
		result.fail("destroy", err)
		return result
	} else if ok {
		result.fail("destroy", fmt.Errorf("record %s still present after destroy", id))
		return result
	}
	result.pass("destroy", "")
	return result
}

func printStoreResult(w io.Writer, result storeCheckResult) {
	fmt.Fprintf(w, "Session store: %s (%s mode)\n", orDash(result.StoreURL), result.Mode)
	for _, c := range result.Checks {
		line := fmt.Sprintf("  [%s] %s", c.Status, c.Name)
		if c.Detail != "" {
			line += ": " + c.Detail
		}
		fmt.Fprintln(w, line)
	}
	if result.Valid {
		fmt.Fprintln(w, "Result: OK")
	} else {
		fmt.Fprintln(w, "Result: FAILED")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var storeJSONOutput bool

var errStoreCheckFailed = errors.New("session store check failed")

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Session store tools",
}

var storeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configured session store accepts and removes sessions",
	Long: `Opens the session store named by session.store_url and runs a probe
record through write, read, touch and destroy. Exits non-zero when any step
fails. In standalone mode there is no store to check.`,
	Args: cobra.NoArgs,
	RunE: runStoreCheck,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeCheckCmd)
	storeCheckCmd.Flags().BoolVar(&storeJSONOutput, "json", false, "Output results as JSON")
}

func runStoreCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	redacted := cfg.Redacted().Session.StoreURL
	var result storeCheckResult
	store, err := session.OpenStore(ctx, cfg.Session)
	switch {
	case err != nil:
		result = storeCheckResult{Mode: string(session.ModeDistributed), Valid: true}
		result.fail("open", err)
	case store == nil:
		result = storeCheckResult{Mode: string(session.ModeStandalone), Valid: true}
		result.Checks = append(result.Checks, checkResult{
			Name: "open", Status: "warn", Detail: "no session store configured",
		})
	default:
		defer store.Close()
		result = probeStore(ctx, store)
		result.Checks = append([]checkResult{{Name: "open", Status: "pass"}}, result.Checks...)
	}
	result.StoreURL = redacted

	out := cmd.OutOrStdout()
	if storeJSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printStoreResult(out, result)
	}

	if !result.Valid {
		return errStoreCheckFailed
	}
	return nil
}

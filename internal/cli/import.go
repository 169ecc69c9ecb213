package cli

import (
	"fmt"
	"os"

	"github.com/ldavies/fitsync/internal/dedupe"
	"github.com/ldavies/fitsync/internal/snapshot"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a snapshot file into the store",
	Long: `Import plans a reconciliation of the snapshot against local state, then
applies it. Without decisions, local state wins every conflict: nothing is
overwritten, no tombstone is restored, no near-duplicate is inserted.

Use --dry-run to inspect the plan and collect decision keys, then pass a
YAML decisions file:

  keep_import: ["id:..."]
  restore: ["hk:..."]
  skip_insert: ["id:..."]
  insert_legacy: ["legacy:..."]`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var (
	importDryRun    bool
	importDecisions string
	importRestore   bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Print the plan without applying it")
	importCmd.Flags().StringVar(&importDecisions, "decisions", "", "YAML file with conflict decisions")
	importCmd.Flags().BoolVar(&importRestore, "restore", false, "Restore all tombstoned items in the snapshot")
}

func runImport(cmd *cobra.Command, args []string) error {
	database, st, cfg, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	path := cfg.SnapshotPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return exitError(1, fmt.Errorf("no snapshot path (pass a file or set FITSYNC_SNAPSHOT_PATH)"))
	}

	doc, err := snapshot.ReadFile(path)
	if err != nil {
		return exitError(1, err)
	}
	local, err := snapshot.LoadLocal(st)
	if err != nil {
		return exitError(1, err)
	}
	plan, err := snapshot.PlanImport(doc, local)
	if err != nil {
		return exitError(1, err)
	}

	if importDryRun {
		printPlan(cmd, doc, plan)
		return nil
	}

	var decisions snapshot.Decisions
	if importDecisions != "" {
		data, err := os.ReadFile(importDecisions)
		if err != nil {
			return exitError(1, fmt.Errorf("failed to read decisions file: %w", err))
		}
		if err := yaml.Unmarshal(data, &decisions); err != nil {
			return exitError(1, fmt.Errorf("failed to parse decisions file: %w", err))
		}
	}

	stats, err := snapshot.Apply(st, doc, plan, decisions, importRestore)
	// A failed apply may have partially mutated the store before rollback of
	// the item transaction; collapse anything a racing writer slipped in.
	if _, healErr := dedupe.New(st).Run(); healErr != nil {
		fmt.Fprintf(os.Stderr, "dedupe after import failed: %v\n", healErr)
	}
	if err != nil {
		return exitError(1, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d, updated %d, restored %d, skipped %d\n",
		stats.Inserted, stats.Updated, stats.Restored, stats.Skipped)
	return nil
}

func printPlan(cmd *cobra.Command, doc *snapshot.Document, plan *snapshot.Plan) {
	out := cmd.OutOrStdout()
	if plan.Empty() {
		fmt.Fprintln(out, "Nothing to import")
		return
	}

	names := docNames(doc)

	if len(plan.IdentityConflicts) > 0 {
		fmt.Fprintf(out, "Identity conflicts (%d): resolve with keep_import\n", len(plan.IdentityConflicts))
		for _, c := range plan.IdentityConflicts {
			fmt.Fprintf(out, "  %s (newer: %s)\n", c.Key, c.Newer)
			diff := difflib.UnifiedDiff{
				A:        renderLocal(c.Local),
				B:        renderIncoming(c.Incoming, names),
				FromFile: "local",
				ToFile:   "import",
				Context:  3,
			}
			text, err := difflib.GetUnifiedDiffString(diff)
			if err == nil {
				fmt.Fprint(out, indent(text))
			}
		}
	}

	if len(plan.TombstoneConflicts) > 0 {
		fmt.Fprintf(out, "Tombstoned (%d): resolve with restore or --restore\n", len(plan.TombstoneConflicts))
		for _, c := range plan.TombstoneConflicts {
			fmt.Fprintf(out, "  %s\n", c.Key)
		}
	}

	if len(plan.NearDuplicates) > 0 {
		fmt.Fprintf(out, "Near-duplicates (%d): force with insert_legacy\n", len(plan.NearDuplicates))
		for _, n := range plan.NearDuplicates {
			fmt.Fprintf(out, "  %s (matches local item %s)\n", n.Key, n.Local.Item.UUID)
		}
	}

	if len(plan.Inserts) > 0 {
		fmt.Fprintf(out, "New items (%d): suppress with skip_insert\n", len(plan.Inserts))
		for _, ins := range plan.Inserts {
			fmt.Fprintf(out, "  %s\n", ins.Key)
		}
	}

	if len(plan.AlreadyExists) > 0 {
		fmt.Fprintf(out, "Already present (%d)\n", len(plan.AlreadyExists))
	}
}

type catalogNames struct {
	exercises map[string]string
	units     map[string]string
}

func docNames(doc *snapshot.Document) catalogNames {
	n := catalogNames{
		exercises: make(map[string]string, len(doc.Exercises)),
		units:     make(map[string]string, len(doc.Units)),
	}
	for _, e := range doc.Exercises {
		n.exercises[e.UUID] = e.Name
	}
	for _, u := range doc.Units {
		n.units[u.UUID] = u.Name
	}
	return n
}

func renderIncoming(item snapshot.Item, names catalogNames) []string {
	return []string{
		fmt.Sprintf("exercise: %s\n", names.exercises[item.ExerciseUUID]),
		fmt.Sprintf("unit: %s\n", names.units[item.UnitUUID]),
		fmt.Sprintf("amount: %.3f\n", item.Amount),
		fmt.Sprintf("enjoyment: %d\n", item.Enjoyment),
		fmt.Sprintf("intensity: %d\n", item.Intensity),
		fmt.Sprintf("note: %s\n", item.Note),
		fmt.Sprintf("modified_at: %s\n", item.ModifiedAt.UTC().Format("2006-01-02T15:04:05Z")),
	}
}

func renderLocal(local snapshot.LocalItem) []string {
	note := ""
	if local.Item.Note != nil {
		note = *local.Item.Note
	}
	return []string{
		fmt.Sprintf("exercise: %s\n", local.ExerciseName),
		fmt.Sprintf("unit: %s\n", local.UnitName),
		fmt.Sprintf("amount: %.3f\n", local.Item.Amount),
		fmt.Sprintf("enjoyment: %d\n", local.Item.Enjoyment),
		fmt.Sprintf("intensity: %d\n", local.Item.Intensity),
		fmt.Sprintf("note: %s\n", note),
		fmt.Sprintf("modified_at: %s\n", local.Item.ModifiedAt.UTC().Format("2006-01-02T15:04:05Z")),
	}
}

func indent(text string) string {
	result := ""
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			result += "    " + text[start:i+1]
			start = i + 1
		}
	}
	if start < len(text) {
		result += "    " + text[start:] + "\n"
	}
	return result
}

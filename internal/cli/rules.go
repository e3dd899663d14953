package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressline/pressline/internal/database"
	"github.com/pressline/pressline/internal/recurrence"
	"github.com/pressline/pressline/internal/scheduler"
)

var (
	rulesOwner  string
	rulesTopics string
	rulesDays   string
	rulesAt     string
	rulesTz     string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage publishing rules",
	Long: `Manage weekly publishing rules.

Examples:
  pressline rules add --owner alice --topics "espresso,pour over" --days mon,thu --at 09:00 --tz Europe/Berlin
  pressline rules list
  pressline rules list --owner alice
  pressline rules show 4f1c...
  pressline rules remove 4f1c...`,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a publishing rule",
	RunE:  runRulesAdd,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List publishing rules",
	RunE:  runRulesList,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a rule and its recent publications",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a rule and its publication log",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesRemove,
}

func init() {
	rulesAddCmd.Flags().StringVar(&rulesOwner, "owner", "", "Owning user (required)")
	rulesAddCmd.Flags().StringVar(&rulesTopics, "topics", "", "Comma-separated topics, one post each per firing (required)")
	rulesAddCmd.Flags().StringVar(&rulesDays, "days", "", "Comma-separated weekdays, e.g. mon,thu (required)")
	rulesAddCmd.Flags().StringVar(&rulesAt, "at", "09:00", "Local time of day, HH:MM")
	rulesAddCmd.Flags().StringVar(&rulesTz, "tz", "UTC", "IANA timezone, e.g. Europe/Berlin")
	_ = rulesAddCmd.MarkFlagRequired("owner")
	_ = rulesAddCmd.MarkFlagRequired("topics")
	_ = rulesAddCmd.MarkFlagRequired("days")

	rulesListCmd.Flags().StringVar(&rulesOwner, "owner", "", "Only list rules for this owner")

	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesRemoveCmd)

	rootCmd.AddCommand(rulesCmd)
}

// openStore opens the configured database for a one-shot management
// command. The caller must Close the returned database.
func openStore() (*scheduler.Store, *database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	return scheduler.NewStore(db), db, nil
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	store, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	days, err := recurrence.ParseWeekdaySet(rulesDays)
	if err != nil {
		return err
	}

	var topics []string
	for _, topic := range strings.Split(rulesTopics, ",") {
		if t := strings.TrimSpace(topic); t != "" {
			topics = append(topics, t)
		}
	}

	rule := &scheduler.Rule{
		Owner:     rulesOwner,
		Topics:    topics,
		TimeOfDay: rulesAt,
		Weekdays:  days,
		Timezone:  rulesTz,
	}

	if err := store.Create(context.Background(), rule); err != nil {
		return err
	}

	fmt.Printf("Created rule %s\n", rule.ID)
	fmt.Printf("First firing: %s (%s)\n",
		rule.ScheduledAt.Format(time.RFC3339),
		describeLocal(rule.ScheduledAt, rule.Timezone))
	return nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	store, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var rules []*scheduler.Rule
	if rulesOwner != "" {
		rules, err = store.ListByOwner(context.Background(), rulesOwner)
	} else {
		rules, err = store.List(context.Background())
	}
	if err != nil {
		return err
	}

	if len(rules) == 0 {
		fmt.Println("No rules.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tDAYS\tAT\tTZ\tTOPICS\tSTATUS\tNEXT RUN")
	for _, rule := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			rule.ID,
			rule.Owner,
			rule.Weekdays.String(),
			rule.TimeOfDay,
			rule.Timezone,
			len(rule.Topics),
			rule.Status,
			rule.ScheduledAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	store, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	rule, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Rule:      %s\n", rule.ID)
	fmt.Printf("Owner:     %s\n", rule.Owner)
	fmt.Printf("Topics:    %s\n", strings.Join(rule.Topics, ", "))
	fmt.Printf("Schedule:  %s at %s (%s)\n", rule.Weekdays, rule.TimeOfDay, rule.Timezone)
	fmt.Printf("Status:    %s\n", rule.Status)
	if rule.LastError != "" {
		fmt.Printf("Last error: %s\n", rule.LastError)
	}
	fmt.Printf("Next run:  %s (%s)\n",
		rule.ScheduledAt.Format(time.RFC3339),
		describeLocal(rule.ScheduledAt, rule.Timezone))

	pubs, err := store.ListPublications(ctx, rule.ID)
	if err != nil {
		return err
	}
	if len(pubs) == 0 {
		return nil
	}

	fmt.Println("\nRecent publications:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHED\tTOPIC\tPOST")
	for i, pub := range pubs {
		if i >= 10 {
			break
		}
		ref := pub.PostURL
		if ref == "" {
			ref = pub.PostID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", pub.PublishedAt.Format(time.RFC3339), pub.Topic, ref)
	}
	return w.Flush()
}

func runRulesRemove(cmd *cobra.Command, args []string) error {
	store, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Removed rule %s\n", args[0])
	return nil
}

func describeLocal(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return t.Format(time.RFC3339)
	}
	return t.In(loc).Format("Mon 15:04 MST")
}

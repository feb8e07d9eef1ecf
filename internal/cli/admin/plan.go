package admin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/spf13/cobra"
)

func PlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage billing plans",
		Long:  "Seed and list the billing plans",
	}

	cmd.AddCommand(PlanSeedCmd())
	cmd.AddCommand(PlanListCmd())

	return cmd
}

func PlanSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the built-in plans",
		Long:  "Insert or update the built-in plans. Safe to run repeatedly.",
		RunE:  runPlanSeed,
	}
}

func runPlanSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	plans, err := newPlanBilling(e).SeedPlans(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d plans\n", len(plans))
	return nil
}

func PlanListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active plans",
		RunE:  runPlanList,
	}
	addOutputFlag(cmd)
	return cmd
}

func runPlanList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	plans, err := newPlanBilling(e).ListPlans(ctx)
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}

	out := cmd.OutOrStdout()
	if format == outputJSON {
		return printJSON(out, map[string]any{"items": plans})
	}

	if len(plans) == 0 {
		fmt.Fprintln(out, "No plans found. Run \"botstudiod plan seed\" first.")
		return nil
	}
	table := newTable(out, "ID", "Name", "Price", "Interval", "Quotas")
	for _, p := range plans {
		table.Append([]string{p.ID, p.Name, formatPrice(p.PriceCents, p.Currency), p.Interval, formatQuotas(p.Quotas)})
	}
	table.Render()
	return nil
}

// newPlanBilling builds a billing service that only touches plans.
func newPlanBilling(e *env) *service.BillingService {
	return service.NewBillingService(
		repository.NewPlanRepository(e.pool),
		repository.NewSubscriptionRepository(e.pool),
		repository.NewUsageRepository(e.pool),
		repository.NewMemberRepository(e.pool),
		nil,
		e.log,
	)
}

func formatPrice(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}

func formatQuotas(quotas map[string]int64) string {
	keys := make([]string, 0, len(quotas))
	for k := range quotas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := "unlimited"
		if quotas[k] != domain.Unlimited {
			v = strconv.FormatInt(quotas[k], 10)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ", ")
}

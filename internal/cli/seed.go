package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/app"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

var seedVaccines = []string{
	"Pfizer",
	"Moderna",
	"Novavax",
	"Janssen",
	"AstraZeneca",
	"Sinovac",
}

type seedOptions struct {
	caregivers int
	vaccines   int
	days       int
	from       string
	coverage   int // percent of caregiver-days with a slot
}

func newSeedCmd(open Opener) *cobra.Command {
	opts := seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the schedule with fake caregivers, slots and stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				return seed(ctx, a.Service, opts, cmd)
			})
		},
	}
	cmd.Flags().IntVar(&opts.caregivers, "caregivers", 20, "caregivers to create")
	cmd.Flags().IntVar(&opts.vaccines, "vaccines", 3, "vaccine products to stock")
	cmd.Flags().IntVar(&opts.days, "days", 14, "days of availability to publish")
	cmd.Flags().StringVar(&opts.from, "from", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&opts.coverage, "coverage", 60, "percent of caregiver-days that get a slot")
	return cmd
}

func seed(ctx context.Context, svc *scheduling.Service, opts seedOptions, cmd *cobra.Command) error {
	start := scheduling.DateOf(time.Now())
	if opts.from != "" {
		d, err := scheduling.ParseDate(opts.from)
		if err != nil {
			return err
		}
		start = d
	}
	for flag, v := range map[string]int{"caregivers": opts.caregivers, "vaccines": opts.vaccines, "days": opts.days} {
		if v < 0 {
			return fmt.Errorf("%w: --%s must not be negative, got %d", scheduling.ErrInvalidArgument, flag, v)
		}
	}
	if opts.vaccines > len(seedVaccines) {
		opts.vaccines = len(seedVaccines)
	}

	faker := gofakeit.New(0)

	for _, name := range seedVaccines[:opts.vaccines] {
		v, err := svc.AddDoses(ctx, scheduling.Caregiver("seed"), name, faker.Number(20, 200))
		if err != nil {
			return fmt.Errorf("stock %s: %w", name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stocked %s: %d doses\n", v.Name, v.Doses)
	}

	published := 0
	for i := 0; i < opts.caregivers; i++ {
		caregiver := fmt.Sprintf("%s.%s", faker.FirstName(), faker.LastName())
		for day := 0; day < opts.days; day++ {
			if faker.Number(1, 100) > opts.coverage {
				continue
			}
			_, err := svc.UploadAvailability(ctx, scheduling.Caregiver(caregiver), start.AddDate(0, 0, day))
			if errors.Is(err, scheduling.ErrConflict) {
				continue
			}
			if err != nil {
				return fmt.Errorf("publish %s: %w", caregiver, err)
			}
			published++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %d slots for %d caregivers over %d days\n", published, opts.caregivers, opts.days)
	return nil
}

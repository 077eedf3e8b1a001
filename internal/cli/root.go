package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/app"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/config"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/logging"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

// Opener builds the backend a command runs against.
type Opener func(ctx context.Context) (*app.App, error)

func NewRoot() *cobra.Command {
	return newRoot(openFromConfig)
}

func newRoot(open Opener) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:           "vaxctl",
		Short:         "Vaccination appointment scheduler admin tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&as, "as", "", "acting identity, role:id (caregiver:alice, patient:bob)")

	actor := func() (scheduling.Actor, error) { return parseActor(as) }

	cmd.AddCommand(newMigrateCmd(open))
	cmd.AddCommand(newSeedCmd(open))
	cmd.AddCommand(newDosesCmd(open, actor))
	cmd.AddCommand(newAvailabilityCmd(open, actor))
	cmd.AddCommand(newReserveCmd(open, actor))
	cmd.AddCommand(newCancelCmd(open, actor))
	cmd.AddCommand(newAppointmentsCmd(open, actor))
	cmd.AddCommand(newScheduleCmd(open, actor))
	cmd.AddCommand(newVaccinesCmd(open))
	return cmd
}

func openFromConfig(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

func parseActor(s string) (scheduling.Actor, error) {
	role, id, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(id) == "" {
		return scheduling.Actor{}, fmt.Errorf("--as must look like role:id, got %q", s)
	}
	r, err := scheduling.ParseRole(role)
	if err != nil {
		return scheduling.Actor{}, err
	}
	return scheduling.Actor{Role: r, ID: strings.TrimSpace(id)}, nil
}

// withApp opens the backend for the duration of fn.
func withApp(cmd *cobra.Command, open Opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return describe(err)
	}
	return nil
}

// describe turns scheduling errors into their user-facing message.
func describe(err error) error {
	if code := scheduling.Code(err); code != "internal_error" {
		return fmt.Errorf("%s (%s)", scheduling.Message(err), code)
	}
	return err
}

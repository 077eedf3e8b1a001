package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/app"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

type actorFunc func() (scheduling.Actor, error)

func newDosesCmd(open Opener, actor actorFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doses",
		Short: "Vaccine stock",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <vaccine> <count>",
		Short: "Add doses of a vaccine, creating it if new",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be an integer, got %q", args[1])
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				v, err := a.Service.AddDoses(ctx, who, args[0], count)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d doses\n", v.Name, v.Doses)
				return nil
			})
		},
	})
	return cmd
}

func newAvailabilityCmd(open Opener, actor actorFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Caregiver availability",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "upload <date>",
		Short: "Publish an open slot for the acting caregiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			date, err := scheduling.ParseDate(args[0])
			if err != nil {
				return describe(err)
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				slot, err := a.Service.UploadAvailability(ctx, who, date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appointment %d: %s on %s\n", slot.ID, slot.Caregiver, scheduling.FormatDate(slot.Date))
				return nil
			})
		},
	})
	return cmd
}

func newReserveCmd(open Opener, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <date> <vaccine>",
		Short: "Reserve an appointment for the acting patient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			date, err := scheduling.ParseDate(args[0])
			if err != nil {
				return describe(err)
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.Reserve(ctx, who, date, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appointment %d: %s with %s on %s\n",
					res.AppointmentID, res.Vaccine, res.Caregiver, scheduling.FormatDate(res.Date))
				return nil
			})
		},
	}
}

func newCancelCmd(open Opener, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an appointment as the acting caregiver or patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("appointment id must be an integer, got %q", args[0])
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				c, err := a.Service.Cancel(ctx, who, id)
				if err != nil {
					return err
				}
				out := fmt.Sprintf("appointment %d cancelled", c.AppointmentID)
				if c.Vaccine != "" {
					out += ", 1 dose of " + c.Vaccine + " restocked"
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newAppointmentsCmd(open Opener, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "appointments",
		Short: "List the acting identity's booked appointments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				slots, err := a.Service.ListAppointments(ctx, who)
				if err != nil {
					return err
				}
				if len(slots) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no appointments")
					return nil
				}
				for _, s := range slots {
					other := s.Caregiver
					if who.Role == scheduling.RoleCaregiver {
						other = *s.Patient
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", s.ID, scheduling.FormatDate(s.Date), *s.Vaccine, other)
				}
				return nil
			})
		},
	}
}

func newScheduleCmd(open Opener, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <date>",
		Short: "Show available caregivers and vaccine stock for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			date, err := scheduling.ParseDate(args[0])
			if err != nil {
				return describe(err)
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				sched, err := a.Service.SearchSchedule(ctx, who, date)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sched.Caregivers) == 0 {
					fmt.Fprintln(out, "caregivers: none")
				} else {
					fmt.Fprintf(out, "caregivers: %s\n", strings.Join(sched.Caregivers, ", "))
				}
				for _, v := range sched.Vaccines {
					fmt.Fprintf(out, "%s\t%d\n", v.Name, v.Doses)
				}
				return nil
			})
		},
	}
}

func newVaccinesCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "vaccines",
		Short: "List vaccines and remaining doses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				vs, err := a.Service.ListVaccines(ctx)
				if err != nil {
					return err
				}
				for _, v := range vs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", v.Name, v.Doses)
				}
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

func loadDocumentsCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load-documents",
		Short: "Create the default documents, or those in a YAML file, when missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			svc, err := openService(cfg, logger, nil)
			if err != nil {
				return err
			}
			load := svc.SeedDefaultDocuments
			if file != "" {
				load = func(ctx context.Context) ([]services.SeedResult, error) { return svc.LoadDocumentsFile(ctx, file) }
			}
			results, err := load(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range results {
				state := "exists"
				if r.Created {
					state = "created"
				}
				fmt.Printf("%s: %s\n", r.Code, state)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a documents list")
	return cmd
}

func recomputeAttendanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-attendance",
		Short: "Rebuild every member's cached attendance counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			svc, err := openService(cfg, logger, nil)
			if err != nil {
				return err
			}
			sum, err := svc.RecomputeAllAttendance(cmd.Context(), svc.Now())
			if err != nil {
				return err
			}
			fmt.Printf("%d members checked, %d corrected\n", sum.Members, sum.Drifted)
			return nil
		},
	}
}

func createUserCommand() *cobra.Command {
	var email, password, role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a staff or admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.Role(role)
			if !r.IsStaff() {
				return fmt.Errorf("role must be %q or %q", models.RoleStaff, models.RoleAdmin)
			}
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			svc, err := openService(cfg, logger, nil)
			if err != nil {
				return err
			}
			u, err := svc.CreateUser(cmd.Context(), email, password, r)
			if err != nil {
				return err
			}
			fmt.Printf("created %s user %s (%s)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.Flags().StringVar(&role, "role", string(models.RoleStaff), "staff or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

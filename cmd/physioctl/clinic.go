package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jwalitptl/physiocapture-api/internal/config"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository/postgres"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	"github.com/jwalitptl/physiocapture-api/internal/service/tenant"
	"github.com/jwalitptl/physiocapture-api/pkg/security"
)

// managerPasswordEnv keeps the first password out of shell history.
const managerPasswordEnv = "PHYSIO_MANAGER_PASSWORD"

func clinicCmd(log *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinics",
	}

	var req model.CreateClinicRequest
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic and its first network manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Manager.Password = os.Getenv(managerPasswordEnv)
			if req.Manager.Password == "" {
				return errors.New(managerPasswordEnv + " is required")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			base := postgres.NewBaseRepository(db, cfg.Database.LockTimeout)
			users := postgres.NewUserRepository(base)
			svc := tenant.NewService(&base,
				postgres.NewClinicRepository(base),
				postgres.NewBranchRepository(base),
				users,
				security.NewBcryptHasher(0),
				audit.NewService(postgres.NewAuditRepository(base)),
			)

			clinic, manager, err := svc.CreateClinic(cmd.Context(), &req)
			if err != nil {
				return err
			}
			log.Info("clinic created",
				zap.String("clinic_id", clinic.ID.String()),
				zap.String("tax_id", clinic.TaxID),
				zap.String("manager_id", manager.ID.String()),
				zap.String("manager_email", manager.Email))
			return nil
		},
	}

	flags := createCmd.Flags()
	flags.StringVar(&req.Name, "name", "", "clinic display name")
	flags.StringVar(&req.LegalName, "legal-name", "", "registered company name")
	flags.StringVar(&req.TaxID, "cnpj", "", "clinic CNPJ")
	flags.IntVar(&req.MaxTherapists, "max-therapists", model.DefaultMaxTherapists, "active therapist quota")
	flags.StringVar(&req.Manager.Name, "manager-name", "", "network manager name")
	flags.StringVar(&req.Manager.Email, "manager-email", "", "network manager login")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("cnpj")
	_ = createCmd.MarkFlagRequired("manager-name")
	_ = createCmd.MarkFlagRequired("manager-email")

	cmd.AddCommand(createCmd)
	return cmd
}

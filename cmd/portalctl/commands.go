package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/dentaportal/portal-api/cmd/portalctl/ui"
	"github.com/dentaportal/portal-api/internal/account"
	"github.com/dentaportal/portal-api/internal/auth"
	"github.com/dentaportal/portal-api/internal/config"
	"github.com/dentaportal/portal-api/internal/database"
	"github.com/dentaportal/portal-api/internal/dentist"
	"github.com/dentaportal/portal-api/internal/email"
	"github.com/dentaportal/portal-api/internal/logging"
)

var errMissingFields = errors.New("missing administrator details and --no-input is set")

// env is what every subcommand needs: configuration, a logger and the database
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	sqlDB  *sql.DB
	db     *bun.DB
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	sqlDB, err := database.Open(cfg.Database.ConnectionString(), database.PoolOptions{
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		sqlDB:  sqlDB,
		db:     database.NewBunDB(sqlDB, false),
	}, nil
}

func (e *env) Close() {
	_ = e.db.Close()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}
	defer e.Close()

	if err := database.Migrate(cmd.Context(), e.sqlDB, args[0]); err != nil {
		ui.PrintError(err.Error())
		return err
	}

	ui.PrintSuccess("migrate " + args[0] + " complete")
	return nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	details := adminDetailsFromFlags(cmd)
	noInput, _ := cmd.Flags().GetBool("no-input")

	if !details.Complete() {
		if noInput {
			ui.PrintError(errMissingFields.Error())
			return errMissingFields
		}
		ui.PrintTitle("Create administrator")
		if err := ui.RunAdminForm(details); err != nil {
			return fmt.Errorf("form cancelled: %w", err)
		}
	}

	e, err := openEnv()
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}
	defer e.Close()

	acc, err := createAdmin(cmd.Context(), e, details)
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}

	ui.PrintSuccess("Administrator created")
	ui.PrintField("ID", acc.ID.String())
	ui.PrintField("Email", acc.Email)
	return nil
}

func adminDetailsFromFlags(cmd *cobra.Command) *ui.AdminDetails {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return &ui.AdminDetails{
		FirstName: get("first-name"),
		LastName:  get("last-name"),
		Email:     get("email"),
		Phone:     get("phone"),
		Password:  get("password"),
	}
}

// createAdmin goes through the lifecycle service so the same validation and
// hashing apply as for self-registration. No session tokens are issued here.
func createAdmin(ctx context.Context, e *env, d *ui.AdminDetails) (*account.PublicAccount, error) {
	service := auth.NewService(
		account.NewRepository(e.db),
		auth.NewPasswordHasher(auth.DefaultArgon2Params),
		nil,
		email.NewLogNotifier(e.logger),
		e.logger,
		auth.Config{
			FrontendURL:        e.cfg.App.FrontendURL,
			DefaultPhoneRegion: e.cfg.App.DefaultPhoneRegion,
		},
	)

	acc, err := service.CreateAdmin(ctx, auth.RegisterInput{
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Phone:     d.Phone,
		Password:  d.Password,
	})
	if err != nil {
		var validationErr *auth.ValidationError
		if errors.As(err, &validationErr) {
			for field, msg := range validationErr.Fields {
				ui.PrintField(field, msg)
			}
		}
		return nil, err
	}
	return acc, nil
}

func runApproveDentist(cmd *cobra.Command, _ []string) error {
	emailAddr, _ := cmd.Flags().GetString("email")
	revoke, _ := cmd.Flags().GetBool("revoke")

	e, err := openEnv()
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}
	defer e.Close()

	service := dentist.NewService(account.NewRepository(e.db), e.logger)
	profile, err := service.SetVerifiedByEmail(cmd.Context(), emailAddr, !revoke)
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}

	if revoke {
		ui.PrintSuccess("Dentist approval revoked")
	} else {
		ui.PrintSuccess("Dentist approved")
	}
	ui.PrintField("Email", account.NormalizeEmail(emailAddr))
	ui.PrintField("Profile", profile.ID.String())
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/auth"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/forms"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/store"
)

type rootOptions struct {
	dbPath string
	// readPassword prompts for a password; replaced in tests.
	readPassword func(prompt string) (string, error)
}

func defaultDBPath() string {
	if p := os.Getenv("DB_PATH"); p != "" {
		return p
	}
	return "./farm.db"
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "farmctl",
		Short:         "Administer the Agro Rent database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", defaultDBPath(), "path to the SQLite database")

	root.AddCommand(
		newMigrateCmd(opts),
		newAddUserCmd(opts),
		newUsersCmd(opts),
		newMachinesCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

// openStore opens and migrates the database, so commands work before the
// server has ever run.
func (o *rootOptions) openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.NewStore(o.dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date.\n", opts.dbPath)
			return nil
		},
	}
}

func newAddUserCmd(opts *rootOptions) *cobra.Command {
	var (
		username string
		phone    string
		password string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				pw, err := opts.readPassword("Password: ")
				if err != nil {
					return err
				}
				confirm, err := opts.readPassword("Confirm password: ")
				if err != nil {
					return err
				}
				if pw != confirm {
					return errors.New("passwords do not match")
				}
				password = pw
			}

			form := forms.RegisterForm{Username: username, Phone: phone, Password: password, ConfirmPassword: password}
			if errs := forms.Validate(form); errs != nil {
				fields := make([]string, 0, len(errs))
				for field := range errs {
					fields = append(fields, field)
				}
				sort.Strings(fields)
				for _, field := range fields {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, errs[field])
				}
				return errors.New("invalid user details")
			}

			hash, err := auth.HashPassword(password, 0)
			if err != nil {
				return err
			}
			s, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			u := &models.User{Username: username, Phone: phone, Password: hash, IsAdmin: admin}
			if err := s.CreateUser(cmd.Context(), u); err != nil {
				if errors.Is(err, store.ErrUsernameTaken) {
					return fmt.Errorf("username %q is already taken", username)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User '%s' created successfully (id %d).\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username for the new user")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone number")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newUsersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			renderUsers(cmd.OutOrStdout(), users)
			return nil
		},
	}
}

func newMachinesCmd(opts *rootOptions) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "List machinery listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			machines, err := s.ListMachines(cmd.Context(), search)
			if err != nil {
				return err
			}
			renderMachines(cmd.OutOrStdout(), machines)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by name or category")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise accounts and listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Users: %d\nListings: %d\n", stats.TotalUsers, stats.TotalMachines)

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Category", "Listings"})
			for _, c := range stats.ByCategory {
				t.AppendRow(table.Row{c.Category, c.Count})
			}
			t.Render()
			return nil
		},
	}
}

func renderUsers(out io.Writer, users []models.User) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Username", "Phone", "Admin", "Created"})
	for _, u := range users {
		t.AppendRow(table.Row{u.ID, u.Username, u.Phone, u.IsAdmin, u.CreatedAt.Format("2006-01-02 15:04")})
	}
	t.AppendFooter(table.Row{"", "Total", len(users)})
	t.Render()
}

func renderMachines(out io.Writer, machines []models.Machine) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Category", "Price/day", "Owner", "Image"})
	for _, m := range machines {
		t.AppendRow(table.Row{m.ID, m.Name, m.Category, strconv.FormatFloat(m.Price, 'f', 2, 64), m.OwnerName, m.ImageFile})
	}
	t.AppendFooter(table.Row{"", "Total", len(machines)})
	t.Render()
}

func promptPassword(prompt string) (string, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()
	pw, err := rl.ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

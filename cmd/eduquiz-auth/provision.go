package main

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/app"
)

type provisionFlags struct {
	kind      string
	email     string
	firstName string
	lastName  string
	noEmail   bool
}

// NewProvisionCmd creates teacher and student accounts from the terminal
func NewProvisionCmd() *cobra.Command {
	f := &provisionFlags{}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a teacher or student account and print its setup link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.kind, "kind", "teacher", "account kind: teacher or student")
	cmd.Flags().StringVar(&f.email, "email", "", "account email")
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name")
	cmd.Flags().BoolVar(&f.noEmail, "no-email", false, "only print the setup link")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runProvision(cmd *cobra.Command, f *provisionFlags) error {
	kind, ok := auth.ParsePrincipalKind(strings.ToLower(f.kind))
	if !ok || kind == auth.KindAdmin {
		return goerrors.New("kind must be teacher or student", goerrors.CategoryBadInput)
	}

	ctx := cmd.Context()
	rt, err := setup(ctx, cmd.Flags(), cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer rt.Close()

	handler := auth.NewProvisionAccountHandler(auth.NewRepositoryManager(rt.db), rt.cfg.GetBaseURL()).
		WithLogger(rt.logger).
		WithActivitySink(auth.LoggerActivitySink{Logger: rt.logger})

	if !f.noEmail {
		setupMailer, err := app.NewMailer(rt.cfg.Mail, rt.logger, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		handler.WithMailer(setupMailer)
	}

	res, err := handler.Execute(ctx, auth.ActorRef{Type: auth.ActorTypeSystem, ID: "cli"}, auth.ProvisionAccountMessage{
		Kind:      kind,
		Email:     f.email,
		FirstName: f.firstName,
		LastName:  f.lastName,
	})
	if err != nil {
		return err
	}

	cmd.Printf("%s %s created (id %s)\n", kind.Label(), res.Principal.Email(), res.Principal.ID())
	if res.EmailSent {
		cmd.Println("Setup email sent")
	} else if res.EmailError != nil {
		cmd.Printf("Setup email failed: %v\n", res.EmailError)
	}
	cmd.Printf("Setup link: %s\n", res.SetupURL)
	return nil
}

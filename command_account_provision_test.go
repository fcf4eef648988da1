package auth_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	auth "github.com/eduquiz/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var adminActor = auth.ActorRef{ID: "admin-1", Type: string(auth.RoleAdmin)}

func TestProvisionAccount_SendsSetupLink(t *testing.T) {
	tests := []struct {
		kind auth.PrincipalKind
		path string
	}{
		{auth.KindTeacher, auth.TeacherSetupPath},
		{auth.KindStudent, auth.StudentSetupPath},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			repo := newTestRepo(t)
			now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
			events := &eventRecorder{}

			mailer := &MockSetupMailer{}
			mailer.On("SendAccountSetupEmail", mock.Anything, "new@x.com", "Ada Lovelace",
				mock.MatchedBy(func(link string) bool {
					return strings.HasPrefix(link, "http://localhost:8080"+tt.path+"?token=")
				})).Return(nil).Once()

			handler := auth.NewProvisionAccountHandler(repo, "http://localhost:8080/").
				WithMailer(mailer).
				WithActivitySink(events).
				WithTokenIssuer(auth.NewTokenIssuer(auth.WithTokenClock(fixedClock(now)))).
				WithClock(fixedClock(now))

			res, err := handler.Execute(context.Background(), adminActor, auth.ProvisionAccountMessage{
				Kind:      tt.kind,
				Email:     " new@x.com ",
				FirstName: "Ada",
				LastName:  "Lovelace",
			})
			require.NoError(t, err)
			assert.True(t, res.EmailSent)
			assert.NoError(t, res.EmailError)
			mailer.AssertExpectations(t)

			link, err := url.Parse(res.SetupURL)
			require.NoError(t, err)
			assert.Equal(t, tt.path, link.Path)
			assert.Equal(t, "new@x.com", link.Query().Get("email"))
			token := link.Query().Get("token")
			require.NotEmpty(t, token)

			stored, err := repo.Principals().FindByEmail(context.Background(), tt.kind, "new@x.com")
			require.NoError(t, err)
			assert.Equal(t, auth.AccountPending, auth.StatusOf(stored))
			cred := stored.Credential()
			assert.False(t, cred.IsActive)
			assert.Equal(t, auth.DigestToken(token), cred.ResetToken)
			require.NotNil(t, cred.ResetTokenExpiry)
			assert.True(t, now.Add(auth.TokenValidity).Equal(*cred.ResetTokenExpiry))

			_, err = auth.NewPasswordSetHandler(repo).
				WithClock(fixedClock(now.Add(time.Hour))).
				ValidateToken(context.Background(), "new@x.com", token, tt.kind)
			assert.NoError(t, err)

			provisioned := events.ofType(auth.ActivityEventAccountProvisioned)
			require.Len(t, provisioned, 1)
			assert.Equal(t, adminActor, provisioned[0].Actor)
			assert.Equal(t, auth.AccountPending, provisioned[0].ToStatus)
			assert.Equal(t, true, provisioned[0].Metadata["email_sent"])
		})
	}
}

func TestProvisionAccount_PendingAccountCannotLogIn(t *testing.T) {
	repo := newTestRepo(t)
	_, err := auth.NewProvisionAccountHandler(repo, "http://localhost:8080").
		Execute(context.Background(), adminActor, auth.ProvisionAccountMessage{
			Kind: auth.KindStudent, Email: "s@x.com", FirstName: "Sam", LastName: "Student",
		})
	require.NoError(t, err)

	_, err = auth.NewAuthenticator(repo, newTestConfig()).
		Authenticate(context.Background(), "s@x.com", "guess")
	assert.True(t, auth.IsInvalidCredentials(err))
}

func TestProvisionAccount_MailerFailureReturnsLink(t *testing.T) {
	repo := newTestRepo(t)

	mailer := &MockSetupMailer{}
	mailer.On("SendAccountSetupEmail", mock.Anything, "t@x.com", mock.Anything, mock.Anything).
		Return(errors.New("smtp unavailable")).Once()

	res, err := auth.NewProvisionAccountHandler(repo, "https://eduquiz.example").
		WithMailer(mailer).
		Execute(context.Background(), adminActor, auth.ProvisionAccountMessage{
			Kind: auth.KindTeacher, Email: "t@x.com", FirstName: "Tess", LastName: "Teacher",
		})
	require.NoError(t, err)
	assert.False(t, res.EmailSent)
	assert.Error(t, res.EmailError)
	assert.True(t, strings.HasPrefix(res.SetupURL, "https://eduquiz.example/Account/SetPassword?token="))

	_, err = repo.Principals().FindByEmail(context.Background(), auth.KindTeacher, "t@x.com")
	assert.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestProvisionAccount_WithoutMailer(t *testing.T) {
	res, err := auth.NewProvisionAccountHandler(newTestRepo(t), "http://localhost:8080").
		Execute(context.Background(), adminActor, auth.ProvisionAccountMessage{
			Kind: auth.KindStudent, Email: "s@x.com", FirstName: "Sam", LastName: "Student",
		})
	require.NoError(t, err)
	assert.False(t, res.EmailSent)
	assert.NoError(t, res.EmailError)
	assert.NotEmpty(t, res.SetupURL)
}

func TestProvisionAccount_BadBaseURLCreatesNothing(t *testing.T) {
	repo := newTestRepo(t)
	mailer := &MockSetupMailer{}

	_, err := auth.NewProvisionAccountHandler(repo, "http://[::1").
		WithMailer(mailer).
		Execute(context.Background(), adminActor, auth.ProvisionAccountMessage{
			Kind: auth.KindTeacher, Email: "t@x.com", FirstName: "Tess", LastName: "Teacher",
		})
	require.Error(t, err)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)

	_, err = repo.Principals().FindByEmail(context.Background(), auth.KindTeacher, "t@x.com")
	assert.True(t, auth.IsPrincipalNotFound(err))
	mailer.AssertNotCalled(t, "SendAccountSetupEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisionAccount_EmailUniqueness(t *testing.T) {
	repo := newTestRepo(t)
	seedPrincipal(t, repo, auth.KindAdmin, "admin@x.com", testPassword, seedOpts{})
	seedPrincipal(t, repo, auth.KindStudent, "student@x.com", testPassword, seedOpts{})
	seedPrincipal(t, repo, auth.KindTeacher, "teacher@x.com", testPassword, seedOpts{})

	handler := auth.NewProvisionAccountHandler(repo, "http://localhost:8080")

	tests := []struct {
		name  string
		kind  auth.PrincipalKind
		email string
		taken bool
	}{
		{"teacher reuses teacher email", auth.KindTeacher, "teacher@x.com", true},
		{"student reuses student email", auth.KindStudent, "student@x.com", true},
		{"student reuses admin email", auth.KindStudent, "admin@x.com", true},
		{"teacher reuses student email", auth.KindTeacher, "student@x.com", false},
		{"student reuses teacher email", auth.KindStudent, "teacher@x.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Execute(context.Background(), adminActor, auth.ProvisionAccountMessage{
				Kind: tt.kind, Email: tt.email, FirstName: "Dup", LastName: "Licate",
			})
			if tt.taken {
				require.Error(t, err)
				assert.Equal(t, auth.TextCodeEmailTaken, auth.ErrorKind(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProvisionAccount_Validation(t *testing.T) {
	handler := auth.NewProvisionAccountHandler(newMockRepo(), "http://localhost:8080")

	tests := []struct {
		name     string
		msg      auth.ProvisionAccountMessage
		wantCode string
	}{
		{
			name: "bad email",
			msg:  auth.ProvisionAccountMessage{Kind: auth.KindTeacher, Email: "not-an-email", FirstName: "A", LastName: "B"},
		},
		{
			name: "missing first name",
			msg:  auth.ProvisionAccountMessage{Kind: auth.KindTeacher, Email: "a@x.com", LastName: "B"},
		},
		{
			name:     "admins are not provisioned",
			msg:      auth.ProvisionAccountMessage{Kind: auth.KindAdmin, Email: "a@x.com", FirstName: "A", LastName: "B"},
			wantCode: auth.TextCodeUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Execute(context.Background(), adminActor, tt.msg)
			require.Error(t, err)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, auth.ErrorKind(err))
			}
		})
	}
}

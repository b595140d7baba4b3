package drop_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

func TestDropService_RegisterLogin(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acme", 0, false)

	user, err := f.svc.Register(ctx, "alice@example.com", "correct horse", "Alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.PasswordHash == "correct horse" || !strings.HasPrefix(user.PasswordHash, "$2") {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", user.PasswordHash)
	}
	f.grant(t, "acme", drop.Actor{Identity: model.UserIdentity(user.ID, user.Name)}, model.RoleWrite)

	res, err := f.svc.Login(ctx, "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if len(res.Token) != 64 {
		t.Errorf("len(Token) = %d, want 64 hex chars", len(res.Token))
	}
	if want := f.clock.Now().Add(drop.DefaultSessionTTL); !res.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", res.ExpiresAt, want)
	}
	if res.User.LastLogin == nil {
		t.Error("LastLogin not set after login")
	}
	if len(res.Memberships) != 1 || res.Memberships[0].AccountID != "acme" || res.Memberships[0].Role != model.RoleWrite {
		t.Errorf("Memberships = %+v, want one write membership on acme", res.Memberships)
	}

	id, err := f.svc.Authenticate(ctx, drop.Credentials{BearerToken: res.Token})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.Kind != model.IdentityUser || id.ID != user.ID {
		t.Errorf("Authenticate() = %+v, want user %s", id, user.ID)
	}

	if err := f.svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, drop.Credentials{BearerToken: res.Token}); !errors.Is(err, drop.ErrUnauthenticated) {
		t.Errorf("Authenticate() after logout error = %v, want ErrUnauthenticated", err)
	}
}

func TestDropService_Register_Validation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Register(ctx, "bob@example.com", "pw", "Bob"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name                  string
		email, password, user string
	}{
		{"missing email", "", "pw", "X"},
		{"missing password", "x@example.com", "", "X"},
		{"missing name", "x@example.com", "pw", " "},
		{"not an email", "not-an-email", "pw", "X"},
		{"duplicate email", "bob@example.com", "pw", "Bobby"},
		{"duplicate email differing in case", "BOB@example.com", "pw", "Bobby"},
		{"password too long for bcrypt", "long@example.com", strings.Repeat("p", 100), "Long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.email, tt.password, tt.user)
			if !errors.Is(err, drop.ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDropService_Login_Failures(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Register(ctx, "carol@example.com", "s3cret", "Carol"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, errWrongPassword := f.svc.Login(ctx, "carol@example.com", "guess")
	_, errUnknownUser := f.svc.Login(ctx, "nobody@example.com", "guess")

	for name, err := range map[string]error{"wrong password": errWrongPassword, "unknown user": errUnknownUser} {
		if !errors.Is(err, drop.ErrUnauthenticated) {
			t.Errorf("%s: error = %v, want ErrUnauthenticated", name, err)
		}
	}
	if errWrongPassword.Error() != errUnknownUser.Error() {
		t.Errorf("failures are distinguishable: %q vs %q", errWrongPassword, errUnknownUser)
	}
	if _, err := f.svc.Login(ctx, "", ""); !errors.Is(err, drop.ErrValidation) {
		t.Errorf("empty login error = %v, want ErrValidation", err)
	}
}

func TestDropService_Authenticate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Register(ctx, "dave@example.com", "pw", "Dave"); err != nil {
		t.Fatal(err)
	}
	login, err := f.svc.Login(ctx, "dave@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	_, agent := f.agent(t, "ingest-bot")
	_, revoked := f.agent(t, "old-bot")
	if err := f.svc.RevokeAgent(ctx, revoked.ID); err != nil {
		t.Fatalf("RevokeAgent() error = %v", err)
	}

	tests := []struct {
		name     string
		creds    drop.Credentials
		wantKind model.IdentityKind
		wantID   string
		wantErr  error
	}{
		{name: "session token", creds: drop.Credentials{BearerToken: login.Token}, wantKind: model.IdentityUser, wantID: login.User.ID},
		{name: "api key", creds: drop.Credentials{APIKey: agent.APIKey}, wantKind: model.IdentityAgent, wantID: agent.ID},
		{name: "bearer wins over api key", creds: drop.Credentials{BearerToken: login.Token, APIKey: agent.APIKey}, wantKind: model.IdentityUser, wantID: login.User.ID},
		{name: "invalid bearer is not rescued by a valid api key", creds: drop.Credentials{BearerToken: "bogus", APIKey: agent.APIKey}, wantErr: drop.ErrUnauthenticated},
		{name: "no credentials", creds: drop.Credentials{}, wantErr: drop.ErrUnauthenticated},
		{name: "unknown api key", creds: drop.Credentials{APIKey: "nope"}, wantErr: drop.ErrUnauthenticated},
		{name: "revoked agent", creds: drop.Credentials{APIKey: revoked.APIKey}, wantErr: drop.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := f.svc.Authenticate(ctx, tt.creds)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if id.Kind != tt.wantKind || id.ID != tt.wantID {
				t.Errorf("Authenticate() = %+v, want %s:%s", id, tt.wantKind, tt.wantID)
			}
		})
	}

	t.Run("agent usage is recorded", func(t *testing.T) {
		got, err := f.db.GetAgentByID(ctx, agent.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.LastUsed == nil || !got.LastUsed.Equal(f.clock.Now()) {
			t.Errorf("LastUsed = %v, want %v", got.LastUsed, f.clock.Now())
		}
	})
}

func TestDropService_SessionExpiry(t *testing.T) {
	f := newFixtureWith(t, nil, drop.Options{SessionTTL: time.Hour})
	if _, err := f.svc.Register(ctx, "erin@example.com", "pw", "Erin"); err != nil {
		t.Fatal(err)
	}
	login, err := f.svc.Login(ctx, "erin@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(59 * time.Minute)
	if _, err := f.svc.Authenticate(ctx, drop.Credentials{BearerToken: login.Token}); err != nil {
		t.Errorf("Authenticate() before expiry error = %v", err)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.svc.Authenticate(ctx, drop.Credentials{BearerToken: login.Token}); !errors.Is(err, drop.ErrUnauthenticated) {
		t.Errorf("Authenticate() at expiry error = %v, want ErrUnauthenticated", err)
	}

	f.clock.Advance(time.Second)
	_, expiredErr := f.svc.Authenticate(ctx, drop.Credentials{BearerToken: login.Token})
	_, unknownErr := f.svc.Authenticate(ctx, drop.Credentials{BearerToken: strings.Repeat("0", 64)})
	if !errors.Is(expiredErr, drop.ErrUnauthenticated) || unknownErr == nil || expiredErr.Error() != unknownErr.Error() {
		t.Errorf("expired session error = %v, unknown token error = %v; want the same ErrUnauthenticated", expiredErr, unknownErr)
	}

	n, err := f.svc.SweepSessions(ctx)
	if err != nil {
		t.Fatalf("SweepSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SweepSessions() = %d, want 1", n)
	}
}

func TestDropService_ListAccounts(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acme", 0, false)
	f.account(t, "globex", 0, false)
	f.account(t, "initech", 0, false)
	bot, _ := f.agent(t, "bot")
	f.grant(t, "acme", bot, model.RoleRead)
	f.grant(t, "globex", bot, model.RoleAdmin)

	if _, err := f.svc.SetAccountStatus(ctx, "globex", model.AccountSuspended); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.ListAccounts(ctx, bot.Identity)
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(got) != 1 || got[0].AccountID != "acme" || got[0].Role != model.RoleRead {
		t.Errorf("ListAccounts() = %+v, want only acme (read)", got)
	}

	if _, err := f.svc.ListAccounts(ctx, model.Identity{}); !errors.Is(err, drop.ErrUnauthenticated) {
		t.Errorf("ListAccounts() with no identity error = %v, want ErrUnauthenticated", err)
	}
}

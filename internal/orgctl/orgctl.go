// Package orgctl implements the orgctl command line client.
package orgctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallbiznis/orgaccess/internal/client"
	"github.com/smallbiznis/orgaccess/internal/clientsession"
)

const usage = `commands:
  login TOKEN        sign in with an access token
  logout             forget the session
  orgs               list your organizations
  use ORG            switch the active organization
  can PERMISSION     check a permission in the active organization
  invite EMAIL ROLE  invite someone to the active organization
  accept TOKEN       redeem an invite
  resend EMAIL       issue a fresh token for a pending invite
  revoke TOKEN       revoke an invite
  members            list members of the active organization
  set-role USER ROLE change a member's role
  remove USER        remove a member`

var ErrUsage = errors.New("usage")

// Config holds flags and the requested command.
type Config struct {
	Server    string
	StatePath string
	UserID    string
	Email     string
	OrgID     string
	SendEmail bool
	Command   string
	Args      []string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		Server:    envOr("ORGACCESS_URL", "http://localhost:8080"),
		StatePath: envOr("ORGACCESS_STATE", defaultStatePath()),
		SendEmail: true,
	}
	fs.StringVar(&cfg.Server, "server", cfg.Server, "orgaccess base URL")
	fs.StringVar(&cfg.StatePath, "state", cfg.StatePath, "session state file")
	fs.StringVar(&cfg.UserID, "user", "", "user id for login when the token is not a JWT")
	fs.StringVar(&cfg.Email, "email", "", "email for login when the token is not a JWT")
	fs.StringVar(&cfg.OrgID, "org", "", "organization to act on instead of the active one")
	fs.BoolVar(&cfg.SendEmail, "send-email", cfg.SendEmail, "deliver invite emails")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: orgctl [flags] COMMAND [ARGS]\n\n%s\n\nflags:\n", usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, fmt.Errorf("%w: missing command", ErrUsage)
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]
	return cfg, nil
}

// Run executes the command and writes its output to out.
func Run(ctx context.Context, cfg Config, out io.Writer, httpClient *http.Client) error {
	api := client.New(cfg.Server, httpClient)
	store := clientsession.NewFileStore(cfg.StatePath)
	session, err := clientsession.New(clientsession.Options{
		API:         clientsession.HTTPAPI{Client: api},
		Preferences: store,
		Sessions:    store,
	})
	if err != nil {
		return err
	}

	r := &runner{cfg: cfg, out: out, api: api, session: session}
	if cfg.Command == "login" {
		return r.login(ctx)
	}
	if err := session.Init(ctx); err != nil {
		return err
	}
	if session.Token() == "" && cfg.Command != "logout" {
		return clientsession.ErrNotSignedIn
	}
	return r.dispatch(ctx)
}

type runner struct {
	cfg     Config
	out     io.Writer
	api     *client.Client
	session *clientsession.Context
}

func (r *runner) dispatch(ctx context.Context) error {
	authed := r.api.WithToken(r.session.Token())
	switch r.cfg.Command {
	case "logout":
		return r.session.SignOut()
	case "orgs":
		active := r.session.ActiveOrg()
		for _, org := range r.session.Memberships() {
			marker := " "
			if org.OrgID == active {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s\t%s\n", marker, org.OrgID, org.Role)
		}
		return nil
	case "use":
		orgID, err := r.arg(0)
		if err != nil {
			return err
		}
		return r.session.SelectOrg(orgID)
	case "can":
		perm, err := r.arg(0)
		if err != nil {
			return err
		}
		var allowed bool
		if r.cfg.OrgID != "" {
			allowed, err = authed.CheckPermission(ctx, perm, r.cfg.OrgID)
		} else {
			allowed, err = r.session.Can(ctx, perm)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, allowed)
		return nil
	case "invite":
		if len(r.cfg.Args) != 2 {
			return fmt.Errorf("%w: invite EMAIL ROLE", ErrUsage)
		}
		orgID, err := r.org()
		if err != nil {
			return err
		}
		send := r.cfg.SendEmail
		result, err := authed.CreateInvite(ctx, client.CreateInviteInput{OrgID: orgID, Email: r.cfg.Args[0], Role: r.cfg.Args[1], SendEmail: &send})
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "invited %s as %s\n%s\n", result.Invite.Email, result.Invite.Role, result.AcceptURL)
		if !result.Email.Sent {
			fmt.Fprintf(r.out, "email not sent: %s\n", result.Email.Reason)
		}
		return nil
	case "accept":
		token, err := r.arg(0)
		if err != nil {
			return err
		}
		result, err := authed.AcceptInvite(ctx, token)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "joined %s as %s\n", result.OrgID, result.Role)
		if err := r.session.Reconcile(ctx); err != nil {
			return err
		}
		return r.session.SelectOrg(result.OrgID)
	case "resend":
		address, err := r.arg(0)
		if err != nil {
			return err
		}
		orgID, err := r.org()
		if err != nil {
			return err
		}
		result, err := authed.ResendInvite(ctx, orgID, address, r.cfg.SendEmail)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, result.AcceptURL)
		return nil
	case "revoke":
		token, err := r.arg(0)
		if err != nil {
			return err
		}
		return authed.RevokeInvite(ctx, token)
	case "members":
		orgID, err := r.org()
		if err != nil {
			return err
		}
		members, err := authed.ListMembers(ctx, orgID)
		if err != nil {
			return err
		}
		for _, m := range members {
			fmt.Fprintf(r.out, "%s\t%s\t%s\n", m.UserID, m.Role, m.Email)
		}
		return nil
	case "set-role":
		if len(r.cfg.Args) != 2 {
			return fmt.Errorf("%w: set-role USER ROLE", ErrUsage)
		}
		orgID, err := r.org()
		if err != nil {
			return err
		}
		return authed.UpdateMemberRole(ctx, orgID, r.cfg.Args[0], strings.ToUpper(r.cfg.Args[1]))
	case "remove":
		userID, err := r.arg(0)
		if err != nil {
			return err
		}
		orgID, err := r.org()
		if err != nil {
			return err
		}
		return authed.DeleteMember(ctx, orgID, userID)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, r.cfg.Command)
	}
}

func (r *runner) login(ctx context.Context) error {
	token, err := r.arg(0)
	if err != nil {
		return err
	}
	identity := clientsession.Identity{UserID: r.cfg.UserID, Email: r.cfg.Email}
	if identity.UserID == "" {
		identity, err = clientsession.IdentityFromToken(token)
		if err != nil {
			return fmt.Errorf("read token identity (pass -user for opaque tokens): %w", err)
		}
	}
	if err := r.session.SetSession(ctx, identity, token); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "signed in as %s\n", identity.UserID)
	if active := r.session.ActiveOrg(); active != "" {
		fmt.Fprintf(r.out, "active organization: %s\n", active)
	}
	return nil
}

func (r *runner) arg(i int) (string, error) {
	if i >= len(r.cfg.Args) || strings.TrimSpace(r.cfg.Args[i]) == "" {
		return "", fmt.Errorf("%w: %s needs an argument", ErrUsage, r.cfg.Command)
	}
	return strings.TrimSpace(r.cfg.Args[i]), nil
}

func (r *runner) org() (string, error) {
	if r.cfg.OrgID != "" {
		return r.cfg.OrgID, nil
	}
	if active := r.session.ActiveOrg(); active != "" {
		return active, nil
	}
	return "", clientsession.ErrNoActiveOrganization
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".orgaccess.yml"
	}
	return filepath.Join(dir, "orgaccess", "session.yml")
}

package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/logging"
)

// Client-facing messages for authentication failures.
const (
	MsgAmbiguous          = "Ambiguous username found."
	MsgNotFound           = "User not found."
	MsgInvalidCredentials = "Invalid username or password."
)

// DefaultTimeout bounds connecting to the directory and each request on the connection.
const DefaultTimeout = 10 * time.Second

// Config describes the directory to authenticate against.
type Config struct {
	// URL is the directory address, e.g. ldap://ldap.example.com:389
	URL string

	// BaseDNs are searched in order. The first base containing the user wins.
	BaseDNs []string

	// Timeout defaults to DefaultTimeout
	Timeout time.Duration

	// BindDN and BindPassword, when set, are used to bind before searching.
	// Leave empty for directories that allow anonymous search.
	BindDN       string
	BindPassword string

	// UserAttribute is matched against the login name (default: cn)
	UserAttribute string
}

// Validate checks that cfg can be used to authenticate.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("directory URL is required")
	}
	if len(c.BaseDNs) == 0 {
		return errors.New("at least one directory search base is required")
	}
	for i, base := range c.BaseDNs {
		if strings.TrimSpace(base) == "" {
			return fmt.Errorf("directory search base %d is empty", i+1)
		}
	}
	if c.BindDN != "" && c.BindPassword == "" {
		return errors.New("directory bind password is required when a bind DN is set")
	}
	return nil
}

// Authenticator verifies username/password pairs against the directory.
type Authenticator struct {
	config  Config
	dial    DialFunc
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithDialer replaces the default URL dialer.
func WithDialer(dial DialFunc) Option {
	return func(a *Authenticator) {
		a.dial = dial
	}
}

// WithMetrics records upstream metrics for every directory operation.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator validates cfg and returns an Authenticator.
func NewAuthenticator(cfg Config, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAttribute == "" {
		cfg.UserAttribute = AttrCommonName
	}

	a := &Authenticator{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dial == nil {
		a.dial = URLDialer(cfg.URL, cfg.Timeout)
	}
	a.logger = logging.WithService(a.logger, instrumentation.ServiceLDAP)

	return a, nil
}

// Authenticate looks up username and verifies password by binding as the
// matching entry. Errors are *apierror.Error values:
//
//   - KindAmbiguousEntry when one search base holds several matching entries
//   - KindNotFound when no base holds a match
//   - KindInvalidCredentials when the directory rejects the password
//   - KindUpstream for connection, search or transport failures
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Entry, error) {
	conn, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			a.logger.Debug("failed to close directory connection", logging.Err(cerr))
		}
	}()

	if a.config.BindDN != "" {
		if err := a.bind(ctx, conn, a.config.BindDN, a.config.BindPassword); err != nil {
			return nil, apierror.Upstream("directory service bind failed", err)
		}
	}

	entry, err := a.find(ctx, conn, username)
	if err != nil {
		return nil, err
	}

	if password == "" {
		return nil, apierror.InvalidCredentials(MsgInvalidCredentials)
	}
	if err := ctx.Err(); err != nil {
		return nil, apierror.Upstream("directory login cancelled", err)
	}

	if err := a.bind(ctx, conn, entry.DN, password); err != nil {
		if isTransportError(err) {
			return nil, apierror.Upstream("directory bind failed", err)
		}
		a.logger.Debug("directory rejected bind", logging.Username(username), logging.Err(err))
		return nil, apierror.Wrap(apierror.KindInvalidCredentials, MsgInvalidCredentials, err)
	}

	return entry, nil
}

// Ping opens a connection and performs the service bind if configured.
func (a *Authenticator) Ping(ctx context.Context) error {
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if a.config.BindDN != "" {
		if err := a.bind(ctx, conn, a.config.BindDN, a.config.BindPassword); err != nil {
			return apierror.Upstream("directory service bind failed", err)
		}
	}
	return nil
}

func (a *Authenticator) connect(ctx context.Context) (Conn, error) {
	start := time.Now()
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceLDAP, instrumentation.OperationDial)

	conn, err := a.dial(ctx)
	a.record(ctx, instrumentation.OperationDial, err, start)
	instrumentation.EndSpan(span, err)
	if err != nil {
		return nil, apierror.Upstream("directory unavailable", err)
	}
	return conn, nil
}

// find searches each base in order and returns the first unique match.
func (a *Authenticator) find(ctx context.Context, conn Conn, username string) (*Entry, error) {
	filter := fmt.Sprintf("(%s=%s)", a.config.UserAttribute, ldap.EscapeFilter(username))
	timeLimit := int(a.config.Timeout / time.Second)

	for _, base := range a.config.BaseDNs {
		if err := ctx.Err(); err != nil {
			return nil, apierror.Upstream("directory search cancelled", err)
		}

		req := ldap.NewSearchRequest(
			base,
			ldap.ScopeWholeSubtree,
			ldap.NeverDerefAliases,
			0, // no size limit: more than one result must be observable
			timeLimit,
			false,
			filter,
			[]string{AttrMail, AttrCommonName, AttrDisplayName},
			nil,
		)

		result, err := a.search(ctx, conn, req)
		if err != nil {
			return nil, apierror.Upstream("directory search failed", fmt.Errorf("search %q: %w", base, err))
		}

		switch n := len(result.Entries); {
		case n > 1:
			a.logger.Warn("ambiguous directory entry",
				logging.Username(username),
				slog.String("base_dn", base),
				slog.Int("matches", n))
			return nil, apierror.AmbiguousEntry(MsgAmbiguous)
		case n == 1:
			return entryFromLDAP(result.Entries[0]), nil
		}
	}

	return nil, apierror.NotFound(MsgNotFound)
}

func (a *Authenticator) search(ctx context.Context, conn Conn, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	start := time.Now()
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceLDAP, instrumentation.OperationSearch)

	result, err := conn.Search(req)
	a.record(ctx, instrumentation.OperationSearch, err, start)
	instrumentation.EndSpan(span, err)
	return result, err
}

func (a *Authenticator) bind(ctx context.Context, conn Conn, dn, password string) error {
	start := time.Now()
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceLDAP, instrumentation.OperationBind)

	err := conn.Bind(dn, password)
	a.record(ctx, instrumentation.OperationBind, err, start)
	instrumentation.EndSpan(span, err)
	return err
}

func (a *Authenticator) record(ctx context.Context, operation string, err error, start time.Time) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	a.metrics.RecordUpstreamOperation(ctx, instrumentation.ServiceLDAP, operation, status, time.Since(start))
}

// isTransportError reports whether err is a connection-level failure rather
// than the directory refusing the credentials.
func isTransportError(err error) bool {
	return ldap.IsErrorAnyOf(err,
		ldap.ErrorNetwork,
		ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
	)
}

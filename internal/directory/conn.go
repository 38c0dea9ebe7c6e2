package directory

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the subset of an LDAP connection used by the Authenticator.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// DialFunc opens a new directory connection.
type DialFunc func(ctx context.Context) (Conn, error)

type ldapConn struct {
	conn *ldap.Conn
}

func (c *ldapConn) Bind(username, password string) error {
	return c.conn.Bind(username, password)
}

func (c *ldapConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return c.conn.Search(req)
}

func (c *ldapConn) Close() error {
	c.conn.Close()
	return nil
}

// URLDialer returns a DialFunc connecting to url (ldap:// or ldaps://).
// timeout bounds both the TCP connect and every subsequent request.
func URLDialer(url string, timeout time.Duration) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		dialer := &net.Dialer{Timeout: timeout}
		if deadline, ok := ctx.Deadline(); ok {
			dialer.Deadline = deadline
		}

		conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
		}
		conn.SetTimeout(timeout)
		return &ldapConn{conn: conn}, nil
	}
}

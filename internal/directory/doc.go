// Package directory authenticates users against an LDAP directory.
//
// A login is a search followed by a bind: the username is looked up as the
// common name in each configured search base, in order, and the password is
// then verified by binding as the entry's DN. One connection is opened per
// attempt and always closed before Authenticate returns.
package directory

package directory

import "github.com/go-ldap/ldap/v3"

// Attributes requested for every user search. The DN is always returned.
const (
	AttrMail        = "mail"
	AttrCommonName  = "cn"
	AttrDisplayName = "displayName"
)

// Entry is the read-only view of a directory user.
type Entry struct {
	DN          string
	Mail        string
	CommonName  string
	DisplayName string
}

// DisplayNameOr returns the display name, falling back to the common name and
// then to fallback.
func (e *Entry) DisplayNameOr(fallback string) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.CommonName != "" {
		return e.CommonName
	}
	return fallback
}

func entryFromLDAP(le *ldap.Entry) *Entry {
	return &Entry{
		DN:          le.DN,
		Mail:        le.GetAttributeValue(AttrMail),
		CommonName:  le.GetAttributeValue(AttrCommonName),
		DisplayName: le.GetAttributeValue(AttrDisplayName),
	}
}

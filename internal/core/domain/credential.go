package domain

// CredentialKind distinguishes the two classes of bearer credential that may
// open the push channel: an attendant's session token and a paired display's
// device token.
type CredentialKind string

const (
	CredentialUser    CredentialKind = "user"
	CredentialDisplay CredentialKind = "display"
)

// Credential is a bearer token tagged with its class. Both classes travel
// the same transport code path.
type Credential struct {
	Kind  CredentialKind
	Token string
}

// UserCredential wraps a user session token.
func UserCredential(token string) Credential {
	return Credential{Kind: CredentialUser, Token: token}
}

// DisplayCredential wraps a paired display's device token.
func DisplayCredential(token string) Credential {
	return Credential{Kind: CredentialDisplay, Token: token}
}

// IsZero reports whether the credential is unset.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

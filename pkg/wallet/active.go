package wallet

import "github.com/andri/cardwallet/pkg/secret"

// Active is the wallet bound to the running workflow. Secret fields are
// populated by the credential steps and wiped on teardown.
type Active struct {
	ID   ID
	Name string
	Info Info

	PasswordDoubleHash *secret.Buffer
	Passphrase         *secret.Buffer
}

// NewActive allocates an unbound active wallet.
func NewActive() *Active {
	return &Active{
		PasswordDoubleHash: secret.New(PasswordHashSize),
		Passphrase:         secret.New(MaxPassphraseLen),
	}
}

// Bind copies the non-secret fields of rec. Secret fields are wiped.
func (a *Active) Bind(rec Record) {
	a.Wipe()
	a.ID = rec.ID
	a.Name = rec.Name
	a.Info = rec.Info
}

// Bound reports whether a wallet is selected.
func (a *Active) Bound() bool {
	return a.ID != ID{}
}

// Wipe zeroes every field.
func (a *Active) Wipe() {
	a.ID = ID{}
	a.Name = ""
	a.Info = 0
	a.PasswordDoubleHash.Wipe()
	a.Passphrase.Wipe()
}

// SecretsZero reports whether every secret field is zeroed.
func (a *Active) SecretsZero() bool {
	return a.PasswordDoubleHash.IsZero() && a.Passphrase.IsZero()
}

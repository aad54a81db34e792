package auth

// Identity is the caller as resolved by the identity provider. The zero value
// is an anonymous caller.
type Identity struct {
	UserID  uint
	IsStaff bool
}

func (i Identity) Authenticated() bool {
	return i.UserID != 0
}

// UserRef returns the user id as a nullable reference for ownership columns.
func (i Identity) UserRef() *uint {
	if !i.Authenticated() {
		return nil
	}
	id := i.UserID
	return &id
}

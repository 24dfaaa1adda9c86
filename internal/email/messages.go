package email

// VerificationMessage asks a newly registered account holder to confirm their address
type VerificationMessage struct {
	FirstName        string
	Email            string
	Role             string
	VerificationURL  string
	RegistrationDate string
	BaseURL          string
}

// WelcomeMessage is sent once the address has been verified
type WelcomeMessage struct {
	FirstName string
	Email     string
	Role      string
	LoginURL  string
}

// PasswordResetMessage carries the reset link
type PasswordResetMessage struct {
	FirstName string
	Email     string
	ResetURL  string
}

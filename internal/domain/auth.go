package domain

// Credentials are the inputs of a local login.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Profile is the input of a local registration.
type Profile struct {
	DisplayName string `json:"display_name" validate:"required"`
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

// LinkInfo names the external account to link during onboarding.
type LinkInfo struct {
	ExternalUsername string `json:"external_username" validate:"required"`
}

// AuthResult is what the identity boundary returns for a resolved login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Package profile turns the session's ID token into a verified user profile.
package profile

// Profile is the signed-in user as described by the ID token.
type Profile struct {
	ID                string  `json:"id"`
	Username          string  `json:"username"`
	Email             string  `json:"email"`
	EmailVerified     bool    `json:"emailVerified"`
	FullName          string  `json:"fullName"`
	FamilyName        string  `json:"familyName,omitempty"`
	GivenName         string  `json:"givenName,omitempty"`
	Locale            string  `json:"locale,omitempty"`
	Onboarded         bool    `json:"onboarded,omitempty"`
	MultiTenantAccess bool    `json:"multiTenantAccess,omitempty"`
	Tenant            *Tenant `json:"tenant,omitempty"`
}

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Locale    string `json:"locale,omitempty"`
	Logo      string `json:"logo,omitempty"`
	Onboarded bool   `json:"onboarded,omitempty"`
}

// idTokenClaims are the provider's ID token claims.
type idTokenClaims struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	FamilyName        string `json:"family_name"`
	GivenName         string `json:"given_name"`
	Locale            string `json:"locale"`
	Onboarded         bool   `json:"onboarded"`
	MultiTenant       bool   `json:"multi_tenant"`
	TenantID          string `json:"tenant_id"`
	TenantName        string `json:"tenant_name"`
	TenantLocale      string `json:"tenant_locale"`
	TenantLogo        string `json:"tenant_logo"`
	TenantOnboarded   bool   `json:"tenant_onboarded"`
}

func (c idTokenClaims) profile() *Profile {
	p := &Profile{
		ID:                c.Sub,
		Username:          c.PreferredUsername,
		Email:             c.Email,
		EmailVerified:     c.EmailVerified,
		FullName:          c.Name,
		FamilyName:        c.FamilyName,
		GivenName:         c.GivenName,
		Locale:            c.Locale,
		Onboarded:         c.Onboarded,
		MultiTenantAccess: c.MultiTenant,
	}
	if c.TenantID != "" {
		p.Tenant = &Tenant{
			ID:        c.TenantID,
			Name:      c.TenantName,
			Locale:    c.TenantLocale,
			Logo:      c.TenantLogo,
			Onboarded: c.TenantOnboarded,
		}
	}
	return p
}

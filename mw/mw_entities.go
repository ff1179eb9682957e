package mw

import (
	"encoding/json"
)

// Permission is one Keycloak authorization grant: the scopes allowed on a
// resource.
type Permission struct {
	Scopes []string `json:"scopes"`
	Rsid   string   `json:"rsid"`
	Rsname string   `json:"rsname"`
}

// AuthClaim is the subset of a Keycloak access token the API reads.
type AuthClaim struct {
	Exp           int64  `json:"exp"`
	Iat           int64  `json:"iat"`
	Iss           string `json:"iss"`
	Sub           string `json:"sub"`
	Azp           string `json:"azp"`
	Authorization struct {
		Permissions []Permission `json:"permissions"`
	} `json:"authorization"`
	RealmRoles        []string `json:"realm_roles"`
	PreferredUsername string   `json:"preferred_username"`
}

type Account struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	SystemRoles []string `json:"system_roles"`
	ExpTime     int64    `json:"exp_time"`
}

func (object *Account) String() string {
	b, _ := json.Marshal(object)
	return string(b)
}

// HasPerm reports whether the token grants scope on resource.
func (authClaim *AuthClaim) HasPerm(resource, scope string) bool {
	for _, perm := range authClaim.Authorization.Permissions {
		if perm.Rsname != resource {
			continue
		}
		for _, s := range perm.Scopes {
			if s == scope {
				return true
			}
		}
	}
	return false
}

func (authClaim *AuthClaim) ConvertAuthClaimToAccount() *Account {
	return &Account{
		ID:          authClaim.Sub,
		SystemRoles: authClaim.RealmRoles,
		ExpTime:     authClaim.Exp,
		Username:    authClaim.PreferredUsername,
	}
}

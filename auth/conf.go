package auth

import (
	"golang.org/x/oauth2/clientcredentials"
)

// Supported token sources.
const (
	ModeIAM               = "iam"
	ModeClientCredentials = "client_credentials"
	ModeNone              = "none"
)

// DefaultIAMURL is the IBM Cloud identity endpoint.
const DefaultIAMURL = "https://iam.cloud.ibm.com/identity/token"

// Conf represents the configuration needed for authentication.
type Conf struct {
	Mode         string `json:"mode"`
	APIKey       string `json:"api_key"`
	IAMURL       string `json:"iam_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_url"`
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
	}
}

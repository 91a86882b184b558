package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	authorizer "github.com/localnerve/authorizer-go"
	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/utils"
	"github.com/rs/zerolog/log"
)

var (
	authClient *authorizer.AuthorizerClient
	authOnce   sync.Once
	authErr    error
)

// SessionUser is the part of the Authorizer user the service relies on
type SessionUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// IsAuthorizerInitialized returns true if the Authorizer client is initialized
func IsAuthorizerInitialized() bool {
	return authClient != nil
}

// InitAuthorizer initializes the Authorizer client (singleton pattern)
func InitAuthorizer(cfg *config.Config, requestProtocol, requestHost string) error {
	authOnce.Do(func() {
		// Ping the Authorizer service first
		if err := utils.PingAuthorizer(context.Background(), cfg.AuthzURL); err != nil {
			authErr = fmt.Errorf("authorizer ping failed: %w", err)
			return
		}

		redirectURL := fmt.Sprintf("%s://%s", requestProtocol, requestHost)
		log.Info().Str("authorizerURL", cfg.AuthzURL).Str("clientID", cfg.AuthzClientID).
			Str("redirectURL", redirectURL).Msg("Initializing Authorizer")

		client, err := authorizer.NewAuthorizerClient(cfg.AuthzClientID, cfg.AuthzURL, redirectURL, nil)
		if err != nil {
			authErr = fmt.Errorf("failed to create authorizer client: %w", err)
			return
		}
		authClient = client
	})

	return authErr
}

// ValidateSession validates a session cookie for the given roles
func ValidateSession(cookie string, roles []string) (*SessionUser, error) {
	if authClient == nil {
		return nil, fmt.Errorf("authorizer client not initialized")
	}

	// Convert roles to []*string
	rolesPtrs := make([]*string, len(roles))
	for i := range roles {
		rolesPtrs[i] = &roles[i]
	}

	res, err := authClient.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: cookie,
		Roles:  rolesPtrs,
	})
	if err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}

	if res == nil || !res.IsValid {
		return nil, fmt.Errorf("session is not valid")
	}

	return decodeSessionUser(res.User)
}

// decodeSessionUser reads the fields we need from whatever user shape the SDK returns
func decodeSessionUser(user interface{}) (*SessionUser, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("invalid session user: %w", err)
	}

	var su SessionUser
	if err := json.Unmarshal(raw, &su); err != nil {
		return nil, fmt.Errorf("invalid session user: %w", err)
	}
	if su.ID == "" {
		return nil, fmt.Errorf("session user has no id")
	}
	return &su, nil
}

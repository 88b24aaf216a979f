package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/taskpulse/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	defaultServerPort  = 8000
	defaultSendBuffer  = 64
	defaultCommentSize = 4000
)

// ApplyRuntimeDefaults fills the settings the process cannot start without and cleans
// up values that arrive loosely formatted from the environment. The returned map names
// generated secrets so they can be logged without their values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := make(map[string]bool)
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.RandomToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	cfg.Server.AllowedOrigins = normalizeOrigins(cfg.Server.AllowedOrigins)

	cfg.Auth.JWT.Issuer = strings.TrimSpace(cfg.Auth.JWT.Issuer)
	if cfg.Auth.JWT.Issuer == "" {
		cfg.Auth.JWT.Issuer = DefaultIssuer
	}

	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = defaultSendBuffer
	}
	if cfg.Realtime.MaxCommentLength <= 0 {
		cfg.Realtime.MaxCommentLength = defaultCommentSize
	}

	return generated, nil
}

// normalizeOrigins trims entries and drops blanks, trailing slashes and duplicates.
// A wildcard anywhere collapses the list to just the wildcard.
func normalizeOrigins(origins []string) []string {
	seen := make(map[string]struct{}, len(origins))
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			return []string{"*"}
		}
		key := strings.ToLower(origin)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, origin)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

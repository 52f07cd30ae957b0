package config

import (
	"context"
	"fmt"
	"os"
)

// AWSConfigProvider implements Provider using AWS Secrets Manager, falling
// back to environment variables for keys outside the secret schema (the
// tree-table settings, for example, are plain Lambda environment config).
type AWSConfigProvider struct {
	secretsProvider Provider
	envProvider     Provider
}

// NewAWSConfigProvider creates a new AWS configuration provider
func NewAWSConfigProvider() (Provider, error) {
	// Get secret name from environment variable
	secretName := os.Getenv("AWS_SECRET_NAME")
	if secretName == "" {
		return nil, fmt.Errorf("AWS_SECRET_NAME environment variable not set")
	}

	// Create secrets provider
	secretsProvider, err := NewAWSSecretsProvider(secretName)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS secrets provider: %w", err)
	}

	return &AWSConfigProvider{
		secretsProvider: secretsProvider,
		envProvider:     NewEnvProvider(""),
	}, nil
}

// GetEnvironment returns the current environment
func (p *AWSConfigProvider) GetEnvironment() Environment {
	return p.secretsProvider.GetEnvironment()
}

// GetString retrieves a string configuration value
func (p *AWSConfigProvider) GetString(ctx context.Context, key string) (string, error) {
	value, err := p.secretsProvider.GetString(ctx, key)
	if err != nil {
		return p.envProvider.GetString(ctx, key)
	}
	return value, nil
}

// GetInt retrieves an integer configuration value
func (p *AWSConfigProvider) GetInt(ctx context.Context, key string) (int, error) {
	value, err := p.secretsProvider.GetInt(ctx, key)
	if err != nil {
		return p.envProvider.GetInt(ctx, key)
	}
	return value, nil
}

// GetBool retrieves a boolean configuration value
func (p *AWSConfigProvider) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := p.secretsProvider.GetBool(ctx, key)
	if err != nil {
		return p.envProvider.GetBool(ctx, key)
	}
	return value, nil
}

// GetSecret retrieves a secret value. Secrets never fall back to the
// environment.
func (p *AWSConfigProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.secretsProvider.GetSecret(ctx, key)
}

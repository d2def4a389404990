package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// AWS loads the default AWS config for region with OTEL instrumentation on
// every client built from it.
func AWS(ctx context.Context, region string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)
	return awsCfg, nil
}

// SecretGetter is the subset of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills empty credential fields from Secrets Manager entries
// named <prefix><ENV_NAME>. Missing secrets are logged and skipped.
func LoadSecrets(ctx context.Context, client SecretGetter, prefix string, cfg *Config, logger *slog.Logger) {
	targets := map[string]*string{
		"GEMINI_API_KEY":    &cfg.Gemini.APIKey,
		"ANTHROPIC_API_KEY": &cfg.Anthropic.APIKey,
	}
	for name, field := range targets {
		if *field != "" {
			continue
		}
		secretID := prefix + name
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
		if err != nil {
			logger.Info("secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			*field = *result.SecretString
			logger.Info("loaded secret", "secret_id", secretID)
		}
	}
}

// ResolveSecrets connects to Secrets Manager when a prefix is configured.
func ResolveSecrets(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if cfg.AWS.SecretPrefix == "" {
		return nil
	}
	awsCfg, err := AWS(ctx, cfg.AWS.Region)
	if err != nil {
		return err
	}
	LoadSecrets(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.AWS.SecretPrefix, cfg, logger)
	return nil
}

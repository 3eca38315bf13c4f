package config

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStoreValue reads one parameter from AWS Systems Manager.
func ParameterStoreValue(ctx context.Context, name string, decrypt bool) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(awsCfg)

	input := &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctx, input)
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}

	return *result.Parameter.Value, nil
}

// ResolveAPIKey returns the text-generation credential. Explicit config wins,
// then the named environment variable, then (prod only) the parameter store.
// An empty result with a nil error means no source provided a key.
func (c *ChatConfig) ResolveAPIKey(ctx context.Context, env string) (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	if c.APIKeyEnv != "" {
		if key := os.Getenv(c.APIKeyEnv); key != "" {
			return key, nil
		}
	}
	if env != "prod" || c.APIKeySSMParam == "" {
		return "", nil
	}

	key, err := ParameterStoreValue(ctx, c.APIKeySSMParam, true)
	if err != nil {
		return "", fmt.Errorf("resolve chat api key: %w", err)
	}
	return key, nil
}

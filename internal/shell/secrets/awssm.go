package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// smAPI is the slice of the Secrets Manager client the backend uses.
type smAPI interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// AWSSMBackend keeps secret values in AWS Secrets Manager; the store only
// holds metadata for these secrets.
type AWSSMBackend struct {
	client smAPI
	prefix string
}

// NewAWSSMBackend creates a backend using the default AWS credential chain.
// Secret names are stored under the given prefix, e.g. "shipyard/".
func NewAWSSMBackend(ctx context.Context, region, prefix string) (*AWSSMBackend, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if prefix == "" {
		prefix = "shipyard/"
	}

	return &AWSSMBackend{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: prefix,
	}, nil
}

func (b *AWSSMBackend) Name() string {
	return "awssm"
}

func (b *AWSSMBackend) secretID(name string) string {
	return b.prefix + name
}

func (b *AWSSMBackend) Put(ctx context.Context, name, value string) (string, error) {
	id := b.secretID(name)

	_, err := b.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(id),
		SecretString: aws.String(value),
	})
	if err != nil {
		if !strings.Contains(err.Error(), "ResourceExistsException") {
			return "", fmt.Errorf("failed to create secret %s: %w", id, err)
		}
		_, err = b.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(id),
			SecretString: aws.String(value),
		})
		if err != nil {
			return "", fmt.Errorf("failed to update secret %s: %w", id, err)
		}
	}

	// No local ciphertext; the value lives in Secrets Manager
	return "", nil
}

func (b *AWSSMBackend) Get(ctx context.Context, name, ciphertext string) (string, error) {
	id := b.secretID(name)

	result, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}

	return *result.SecretString, nil
}

func (b *AWSSMBackend) Delete(ctx context.Context, name string) error {
	id := b.secretID(name)

	_, err := b.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(id),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ResourceNotFoundException") {
			return nil
		}
		return fmt.Errorf("failed to delete secret %s: %w", id, err)
	}

	return nil
}

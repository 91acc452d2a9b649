// Package secrets fills empty secret flags from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// SSMAPI is the subset of the SSM client used by the loader.
type SSMAPI interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// Loader reads every parameter under a path prefix.
type Loader struct {
	client SSMAPI
	prefix string
}

// NewLoader creates a loader using the default AWS credential chain.
func NewLoader(ctx context.Context, prefix string) (*Loader, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewLoaderWithClient(ssm.NewFromConfig(awsConfig), prefix), nil
}

func NewLoaderWithClient(client SSMAPI, prefix string) *Loader {
	return &Loader{client: client, prefix: "/" + strings.Trim(prefix, "/") + "/"}
}

// Load returns parameter values keyed by name relative to the prefix,
// e.g. "/studioos/prod/stripe-secret-key" → "stripe-secret-key".
func (l *Loader) Load(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)

	var next *string
	for {
		output, err := l.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(l.prefix),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      next,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load parameters from %s: %w", l.prefix, err)
		}

		for _, p := range output.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			values[strings.TrimPrefix(*p.Name, l.prefix)] = *p.Value
		}

		if output.NextToken == nil || *output.NextToken == "" {
			break
		}
		next = output.NextToken
	}

	return values, nil
}

// Apply loads the parameters and copies them into the empty targets.
// Targets that already have a value keep it.
func (l *Loader) Apply(ctx context.Context, targets map[string]*string) error {
	values, err := l.Load(ctx)
	if err != nil {
		return err
	}

	for name, target := range targets {
		if *target != "" {
			continue
		}
		if v, ok := values[name]; ok {
			*target = v
			log.Debug().Str("parameter", name).Msg("Loaded secret from SSM")
		}
	}
	return nil
}

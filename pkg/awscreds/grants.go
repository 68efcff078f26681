package awscreds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
	s3ctypes "github.com/aws/aws-sdk-go-v2/service/s3control/types"
	"github.com/aws/smithy-go"

	"github.com/idbridge/idbridge/pkg/logger"
)

// S3ControlClient defines the interface for S3 Access Grants operations,
// enabling mock injection for testing.
type S3ControlClient interface {
	GetDataAccess(
		ctx context.Context,
		params *s3control.GetDataAccessInput,
		optFns ...func(*s3control.Options),
	) (*s3control.GetDataAccessOutput, error)
}

// Granter performs the stage-2 scope-down exchange against S3 Access
// Grants. Each call signs with the caller's stage-1 credentials so the
// grant lookup runs as the user's assumed identity.
type Granter struct {
	region    string
	accountID string
	duration  int32

	// newClient builds an S3Control client signing with the given
	// credentials. Tests replace it with a mock factory.
	newClient func(*Credentials) S3ControlClient
}

// NewGranter creates a Granter for the given account and region.
func NewGranter(region, accountID string, durationSeconds int32) (*Granter, error) {
	if region == "" {
		return nil, ErrMissingRegion
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: AWS account ID is missing", ErrNotConfigured)
	}
	if durationSeconds == 0 {
		durationSeconds = DefaultSessionDuration
	}
	if durationSeconds < MinSessionDuration || durationSeconds > MaxSessionDuration {
		return nil, fmt.Errorf("%w: %d is outside %d-%d seconds",
			ErrInvalidSessionDuration, durationSeconds, MinSessionDuration, MaxSessionDuration)
	}

	g := &Granter{region: region, accountID: accountID, duration: durationSeconds}
	g.newClient = g.newS3ControlClient
	return g, nil
}

func (g *Granter) newS3ControlClient(creds *Credentials) S3ControlClient {
	provider := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
			Expires:         creds.Expiration,
			CanExpire:       true,
		}, nil
	})

	return s3control.NewFromConfig(aws.Config{
		Region:      g.region,
		Credentials: provider,
	})
}

// ScopedAccess is the result of a GetDataAccess call: credentials valid
// only for the matched grant target.
type ScopedAccess struct {
	Credentials        *Credentials
	MatchedGrantTarget string
}

// ExchangeForScopedAccess trades stage-1 credentials for prefix-scoped
// credentials covering the given target (an s3:// URI). Grant TTL never
// exceeds the remaining lifetime of the stage-1 credentials because the
// scoped session is derived from them.
func (g *Granter) ExchangeForScopedAccess(
	ctx context.Context,
	base *Credentials,
	target string,
	permission Permission,
) (*ScopedAccess, error) {
	if base == nil || base.AccessKeyID == "" {
		return nil, ErrNilCredentials
	}
	if base.IsExpired() {
		return nil, ErrTokenExchangeFailed
	}
	if target == "" {
		return nil, fmt.Errorf("%w: target is empty", ErrAccessDenied)
	}
	if !strings.HasPrefix(target, "s3://") {
		return nil, fmt.Errorf("%w: target must be an s3:// URI", ErrAccessDenied)
	}

	client := g.newClient(base)

	input := &s3control.GetDataAccessInput{
		AccountId:       aws.String(g.accountID),
		Target:          aws.String(target),
		Permission:      s3ctypes.Permission(permission),
		DurationSeconds: aws.Int32(g.duration),
	}

	output, err := client.GetDataAccess(ctx, input)
	if err != nil {
		if isAccessDenied(err) {
			logger.Debugw("GetDataAccess denied", "target", target, "permission", string(permission))
			return nil, ErrAccessDenied
		}
		logger.Debugf("GetDataAccess failed: %v", err)
		return nil, fmt.Errorf("failed to obtain scoped access: %w", err)
	}

	if output == nil || output.Credentials == nil {
		return nil, ErrNilCredentials
	}

	return &ScopedAccess{
		Credentials: &Credentials{
			AccessKeyID:     aws.ToString(output.Credentials.AccessKeyId),
			SecretAccessKey: aws.ToString(output.Credentials.SecretAccessKey),
			SessionToken:    aws.ToString(output.Credentials.SessionToken),
			Expiration:      aws.ToTime(output.Credentials.Expiration),
		},
		MatchedGrantTarget: aws.ToString(output.MatchedGrantTarget),
	}, nil
}

// isAccessDenied reports whether the error is an AWS AccessDenied response,
// which means no access grant covers the requested target.
func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "AccessDenied" || code == "AccessDeniedException"
	}
	return false
}

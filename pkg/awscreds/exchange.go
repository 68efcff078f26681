package awscreds

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/idbridge/idbridge/pkg/logger"
)

// STSClient defines the interface for STS operations, enabling mock
// injection for testing.
type STSClient interface {
	AssumeRoleWithWebIdentity(
		ctx context.Context,
		params *sts.AssumeRoleWithWebIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// Exchanger performs the stage-1 web-identity exchange against STS.
type Exchanger struct {
	client   STSClient
	roleArn  string
	duration int32
}

// NewExchanger creates an Exchanger with a regional STS client. The role
// ARN is the identity-bearer role assumed on behalf of every signed-in user.
func NewExchanger(ctx context.Context, region, roleArn string, durationSeconds int32) (*Exchanger, error) {
	if region == "" {
		return nil, ErrMissingRegion
	}
	if roleArn == "" {
		return nil, fmt.Errorf("%w: token exchange role ARN is missing", ErrNotConfigured)
	}
	if err := ValidateRoleArn(roleArn); err != nil {
		return nil, err
	}
	if durationSeconds == 0 {
		durationSeconds = DefaultSessionDuration
	}
	if durationSeconds < MinSessionDuration || durationSeconds > MaxSessionDuration {
		return nil, fmt.Errorf("%w: %d is outside %d-%d seconds",
			ErrInvalidSessionDuration, durationSeconds, MinSessionDuration, MaxSessionDuration)
	}

	client, err := newRegionalSTSClient(ctx, region)
	if err != nil {
		return nil, err
	}

	return &Exchanger{client: client, roleArn: roleArn, duration: durationSeconds}, nil
}

// newRegionalSTSClient creates an STS client configured for the specified
// region. AssumeRoleWithWebIdentity is unsigned, so anonymous credentials
// are sufficient.
func newRegionalSTSClient(ctx context.Context, region string) (STSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return sts.NewFromConfig(cfg), nil
}

// ExchangeForBaseCredentials trades a federated identity token for base role
// credentials via AssumeRoleWithWebIdentity. The session name is derived
// from the subject so CloudTrail entries are attributable to the user.
func (e *Exchanger) ExchangeForBaseCredentials(ctx context.Context, token, subject string) (*Credentials, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	sessionName, err := SessionNameFromSubject(subject)
	if err != nil {
		return nil, err
	}

	input := &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(e.roleArn),
		RoleSessionName:  aws.String(sessionName),
		WebIdentityToken: aws.String(token),
		DurationSeconds:  aws.Int32(e.duration),
	}

	output, err := e.client.AssumeRoleWithWebIdentity(ctx, input)
	if err != nil {
		logger.Debugf("STS AssumeRoleWithWebIdentity failed: %v", err)
		return nil, ErrTokenExchangeFailed
	}

	if output == nil || output.Credentials == nil {
		return nil, ErrNilCredentials
	}

	return &Credentials{
		AccessKeyID:     aws.ToString(output.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(output.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(output.Credentials.SessionToken),
		Expiration:      aws.ToTime(output.Credentials.Expiration),
	}, nil
}

// ValidateRoleArn validates that the given string is a valid IAM role ARN.
// It accepts ARNs from all AWS partitions and supports role paths.
func ValidateRoleArn(roleArn string) error {
	if roleArn == "" {
		return fmt.Errorf("%w: ARN is empty", ErrInvalidRoleArn)
	}

	parsed, err := arn.Parse(roleArn)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRoleArn, roleArn)
	}

	if parsed.Service != "iam" {
		return fmt.Errorf("%w: not an IAM ARN: %s", ErrInvalidRoleArn, roleArn)
	}

	if !strings.HasPrefix(parsed.Resource, "role/") {
		return fmt.Errorf("%w: not a role ARN: %s", ErrInvalidRoleArn, roleArn)
	}

	return nil
}

// sessionNameAllowed matches the characters AWS permits in RoleSessionName.
// See: https://docs.aws.amazon.com/STS/latest/APIReference/API_AssumeRoleWithWebIdentity.html
var sessionNameAllowed = regexp.MustCompile(`[^a-zA-Z0-9_+=,.@-]`)

const (
	minSessionNameLen = 2
	maxSessionNameLen = 64
)

// SessionNameFromSubject derives a RoleSessionName from a subject
// identifier. Disallowed characters are replaced with '-' and the result is
// truncated to the 64 character AWS limit.
func SessionNameFromSubject(subject string) (string, error) {
	name := sessionNameAllowed.ReplaceAllString(strings.TrimSpace(subject), "-")
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}
	if len(name) < minSessionNameLen {
		return "", fmt.Errorf("%w: derived name %q is too short", ErrInvalidSessionName, name)
	}
	return name, nil
}

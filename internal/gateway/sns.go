package gateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSGateway delivers messages as SMS via AWS SNS. Media is not supported on
// this channel; templates with media send text only.
type SNSGateway struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSGateway creates an SMS gateway backed by AWS SNS.
func NewSNSGateway(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSGateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSGateway{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Ready is always true once the client is constructed; SNS has no session to
// lose, and per-call failures surface through Send.
func (g *SNSGateway) Ready() bool { return true }

// Send publishes the message to the recipient's phone number.
func (g *SNSGateway) Send(ctx context.Context, recipient, body, mediaPath string) error {
	if recipient == "" {
		return fmt.Errorf("empty recipient")
	}
	if mediaPath != "" {
		g.logger.Warn("sns gateway ignores media attachment",
			zap.String("recipient", recipient),
			zap.String("media_path", mediaPath),
		)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String("+" + recipient),
		Message:     aws.String(body),
	}

	result, err := g.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	g.logger.Info("sms sent via sns",
		zap.String("recipient", recipient),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

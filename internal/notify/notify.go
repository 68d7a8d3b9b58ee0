// Package notify sends the import report e-mail to the user who ran an import.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/ignite/prospect-crm/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Report describes the outcome of one commit.
type Report struct {
	To       string
	Name     string
	Filename string
	Total    int
	Counts   domain.ImportCounts
	Failed   bool
	Error    string
}

// Notifier renders reports and sends them through SES.
type Notifier struct {
	client   SESAPI
	from     string
	renderer *Renderer
}

// NewNotifier creates a notifier sending from the given address.
func NewNotifier(client SESAPI, from string) (*Notifier, error) {
	r, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Notifier{client: client, from: from, renderer: r}, nil
}

// NewSESClient builds an SES v2 client. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewSESClient(ctx context.Context, region, accessKey, secretKey string) (*sesv2.Client, error) {
	if region == "" {
		region = "eu-west-3"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

// ImportReport e-mails the report. Reports without a recipient are skipped.
func (n *Notifier) ImportReport(ctx context.Context, r Report) error {
	if r.To == "" {
		return nil
	}
	msg, err := n.renderer.Render(r)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: []string{r.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("kind"), Value: aws.String("import_report")},
		},
	}

	out, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("send import report: %w", err)
	}
	logger.Info("import report sent", "to", r.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

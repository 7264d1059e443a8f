package generators

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/plaidhost/plaid/internal/domain/message"
)

// QueueSpec is one queue-generator entry from data.toml: an SQS queue
// long-polled back to back (PollSeconds is the wait after a failed poll),
// each message body emitted as a payload and
// deleted from the queue on successful enqueue.
type QueueSpec struct {
	Name        string
	QueueURL    string
	Region      string
	LogType     string
	PollSeconds int
}

// QueueGenerator long-polls one or more SQS queues.
type QueueGenerator struct {
	specs []QueueSpec
}

func NewQueueGenerator(specs []QueueSpec) *QueueGenerator {
	return &QueueGenerator{specs: specs}
}

func (g *QueueGenerator) Name() string { return "queue" }

func (g *QueueGenerator) Run(ctx context.Context, sink Sink) error {
	for _, spec := range g.specs {
		spec := spec
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(spec.Region))
		if err != nil {
			return err
		}
		client := sqs.NewFromConfig(cfg)
		go g.poll(ctx, spec, client, sink)
	}
	<-ctx.Done()
	return nil
}

func (g *QueueGenerator) poll(ctx context.Context, spec QueueSpec, client *sqs.Client, sink Sink) {
	interval := time.Duration(spec.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 20 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(spec.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			slog.WarnContext(ctx, "queue poll failed", "name", spec.Name, "error", err)
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, m := range out.Messages {
			g.deliver(ctx, spec, client, m, sink)
		}
	}
}

func (g *QueueGenerator) deliver(ctx context.Context, spec QueueSpec, client *sqs.Client, m types.Message, sink Sink) {
	msg := message.Message{
		LogType: spec.LogType,
		Payload: []byte(aws.ToString(m.Body)),
		Source:  message.Generator(spec.Name),
	}
	if err := sink.Enqueue(ctx, msg); err != nil {
		slog.WarnContext(ctx, "queue enqueue failed", "name", spec.Name, "error", err)
		return
	}
	_, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(spec.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		slog.WarnContext(ctx, "queue delete failed", "name", spec.Name, "error", err)
	}
}

// Package sqs wraps the AWS SQS client for the worker's queue: long-poll
// receive, explicit acknowledge, and delayed re-submission for retries.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Client consumes and produces messages on a single SQS queue.
type Client struct {
	api        *awssqs.Client
	queueURL   string
	waitTime   int32
	visibility int32
}

// New creates a Client for the given queue. An endpoint override targets
// local SQS-compatible brokers (e.g. ElasticMQ, LocalStack).
func New(ctx context.Context, queueURL, region, endpoint string, waitTimeSeconds, visibilityTimeout int32) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	api := awssqs.NewFromConfig(cfg, func(o *awssqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Client{
		api:        api,
		queueURL:   queueURL,
		waitTime:   waitTimeSeconds,
		visibility: visibilityTimeout,
	}, nil
}

// Receive long-polls the queue for at most one message. An empty slice
// means the poll timed out with nothing to do.
func (c *Client) Receive(ctx context.Context) ([]types.Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     c.waitTime,
		VisibilityTimeout:   c.visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	return out.Messages, nil
}

// Delete acknowledges a message so the queue never redelivers it.
func (c *Client) Delete(ctx context.Context, receiptHandle *string) error {
	_, err := c.api.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Send enqueues a message with an optional delivery delay. SQS caps
// DelaySeconds at 900; longer delays are truncated.
func (c *Client) Send(ctx context.Context, body string, delay time.Duration) error {
	delaySeconds := int32(delay / time.Second)
	if delaySeconds > 900 {
		delaySeconds = 900
	}
	if delaySeconds < 0 {
		delaySeconds = 0
	}

	_, err := c.api.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:     aws.String(c.queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Probe verifies the queue is reachable. Used by the health check task.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.api.GetQueueAttributes(ctx, &awssqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(c.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fmt.Errorf("queue unreachable: %w", err)
	}
	return nil
}

// Package pulsar is a messaging backend built on a pulsar topic consumed through a shared subscription.
package pulsar

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	pulsarlog "github.com/apache/pulsar-client-go/pulsar/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ngageoint/scale/internal/common/config"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/common/scaleerrors"
	"github.com/ngageoint/scale/internal/messaging"
)

// NewClient creates a pulsar client from config, logging through logrus.
func NewClient(config *config.PulsarConfig) (pulsar.Client, error) {
	var authentication pulsar.Authentication
	if config.AuthenticationEnabled {
		if strings.TrimSpace(config.JwtTokenPath) == "" {
			return nil, errors.WithStack(&scaleerrors.ErrInvalidArgument{
				Name:    "pulsar.JwtTokenPath",
				Value:   config.JwtTokenPath,
				Message: "JWT authentication was configured for Pulsar but no JwtTokenPath was supplied",
			})
		}
		authentication = pulsar.NewAuthenticationTokenFromFile(config.JwtTokenPath)
	}

	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:                        config.URL,
		TLSTrustCertsFilePath:      config.TLSTrustCertsFilePath,
		TLSValidateHostname:        config.TLSValidateHostname,
		TLSAllowInsecureConnection: config.TLSAllowInsecureConnection,
		MaxConnectionsPerBroker:    config.MaxConnectionsPerBroker,
		Authentication:             authentication,
		Logger:                     pulsarlog.NewLoggerWithLogrus(logrus.StandardLogger()),
	})
	return client, errors.WithStack(err)
}

// CompressionType maps a configured compression name onto the pulsar constant.
func CompressionType(name string) (pulsar.CompressionType, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return pulsar.NoCompression, nil
	case "lz4":
		return pulsar.LZ4, nil
	case "zlib":
		return pulsar.ZLib, nil
	case "zstd":
		return pulsar.ZSTD, nil
	default:
		return pulsar.NoCompression, errors.WithStack(&scaleerrors.ErrInvalidArgument{
			Name:    "pulsar.CompressionType",
			Value:   name,
			Message: `valid values are "None", "LZ4", "Zlib" and "Zstd"`,
		})
	}
}

type Backend struct {
	producer pulsar.Producer
	consumer pulsar.Consumer
}

// New creates a producer and a shared-subscription consumer on the command topic. workerName identifies this process
// to the broker.
func New(client pulsar.Client, config *config.PulsarConfig, workerName string) (*Backend, error) {
	producer, err := createProducer(client, config, workerName)
	if err != nil {
		return nil, err
	}
	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            config.CommandTopic,
		SubscriptionName: config.SubscriptionName,
		Name:             fmt.Sprintf("%s-consumer", workerName),
		Type:             pulsar.Shared,
	})
	if err != nil {
		producer.Close()
		return nil, errors.WithStack(err)
	}
	return &Backend{producer: producer, consumer: consumer}, nil
}

// NewSendOnly creates a backend that only publishes to the command topic. Processes that never execute messages use
// it so that the shared subscription does not hand them messages they would sit on.
func NewSendOnly(client pulsar.Client, config *config.PulsarConfig, workerName string) (*Backend, error) {
	producer, err := createProducer(client, config, workerName)
	if err != nil {
		return nil, err
	}
	return &Backend{producer: producer}, nil
}

func createProducer(client pulsar.Client, config *config.PulsarConfig, workerName string) (pulsar.Producer, error) {
	compression, err := CompressionType(config.CompressionType)
	if err != nil {
		return nil, err
	}
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Name:            fmt.Sprintf("%s-producer", workerName),
		Topic:           config.CommandTopic,
		CompressionType: compression,
		BatchingMaxSize: config.MaxAllowedMessageSize,
		DisableBatching: config.MaxAllowedMessageSize == 0,
		SendTimeout:     30 * time.Second,
	})
	return producer, errors.WithStack(err)
}

func (b *Backend) Send(ctx *scalecontext.Context, bodies [][]byte) error {
	for _, body := range bodies {
		if _, err := b.producer.Send(ctx, &pulsar.ProducerMessage{Payload: body}); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Receive waits at most wait for the first message, then fills the batch with messages already buffered by the
// consumer.
func (b *Backend) Receive(ctx *scalecontext.Context, batchSize int, wait time.Duration) ([]messaging.Delivery, error) {
	if b.consumer == nil {
		return nil, errors.New("backend is send only")
	}
	var deliveries []messaging.Delivery
	receiveCtx, cancel := scalecontext.WithTimeout(ctx, wait)
	defer cancel()
	msg, err := b.consumer.Receive(receiveCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		// Nothing arrived within wait.
		return nil, nil
	}
	deliveries = append(deliveries, &delivery{consumer: b.consumer, msg: msg})
	for len(deliveries) < batchSize {
		select {
		case consumed := <-b.consumer.Chan():
			deliveries = append(deliveries, &delivery{consumer: b.consumer, msg: consumed.Message})
		default:
			return deliveries, nil
		}
	}
	return deliveries, nil
}

func (b *Backend) Close() error {
	b.producer.Close()
	if b.consumer != nil {
		b.consumer.Close()
	}
	return nil
}

type delivery struct {
	consumer pulsar.Consumer
	msg      pulsar.Message
}

func (d *delivery) Body() []byte {
	return d.msg.Payload()
}

func (d *delivery) Ack(_ *scalecontext.Context) error {
	d.consumer.Ack(d.msg)
	return nil
}

func (d *delivery) Nack(_ *scalecontext.Context) error {
	d.consumer.Nack(d.msg)
	return nil
}

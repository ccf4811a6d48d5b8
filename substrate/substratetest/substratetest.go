// Package substratetest provides configuration and pub/sub fakes for
// substrate and runtime tests.
package substratetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config implements substrate.Config with plain fields.
type Config struct {
	Substrate          string
	KafkaBrokers       []string
	KafkaClientID      string
	KafkaConsumerGroup string
	RabbitMQURL        string
	NATSURL            string
	HTTPServerAddress  string
	HTTPPublisherURL   string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c *Config) GetSubstrate() string          { return c.Substrate }
func (c *Config) GetKafkaBrokers() []string     { return c.KafkaBrokers }
func (c *Config) GetKafkaClientID() string      { return c.KafkaClientID }
func (c *Config) GetKafkaConsumerGroup() string { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string        { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string            { return c.NATSURL }
func (c *Config) GetHTTPServerAddress() string  { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string   { return c.HTTPPublisherURL }
func (c *Config) GetAWSRegion() string          { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string        { return c.AWSEndpoint }

// Published is one recorded Publish call.
type Published struct {
	Topic   string
	Message *message.Message
}

// Publisher records every published message. Set Err to make Publish fail,
// or FailTopics to fail only some topics. Delay slows every Publish down.
type Publisher struct {
	mu         sync.Mutex
	published  []Published
	Err        error
	FailTopics map[string]error
	Delay      time.Duration
	closed     bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	if p.Delay > 0 {
		time.Sleep(p.Delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publisher closed")
	}
	if err := p.FailTopics[topic]; err != nil {
		return err
	}
	if p.Err != nil {
		return p.Err
	}
	for _, msg := range messages {
		p.published = append(p.published, Published{Topic: topic, Message: msg})
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Messages returns the recorded messages for topic, or all of them when
// topic is empty.
func (p *Publisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*message.Message
	for _, rec := range p.published {
		if topic == "" || rec.Topic == topic {
			out = append(out, rec.Message)
		}
	}
	return out
}

// Subscriber hands out a closed channel for every topic.
type Subscriber struct {
	mu     sync.Mutex
	Topics []string
	Err    error
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Topics = append(s.Topics, topic)
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *Subscriber) Close() error { return nil }

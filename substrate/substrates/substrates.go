// Package substrates registers every built-in substrate with the default
// registry. Import it for its side effects.
package substrates

import (
	"github.com/drblury/docflow/substrate/aws"
	"github.com/drblury/docflow/substrate/channel"
	"github.com/drblury/docflow/substrate/http"
	"github.com/drblury/docflow/substrate/jetstream"
	"github.com/drblury/docflow/substrate/kafka"
	"github.com/drblury/docflow/substrate/nats"
	"github.com/drblury/docflow/substrate/rabbitmq"
)

func init() {
	aws.Register()
	channel.Register()
	http.Register()
	jetstream.Register()
	kafka.Register()
	nats.Register()
	rabbitmq.Register()
}

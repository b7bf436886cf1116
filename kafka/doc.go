// Package kafka provides an optional transcript sink on Kafka, for
// deployments that archive meeting transcripts outside the live bus.
// It wraps a kafka-go Writer with meetscribe configuration and
// logging.
package kafka

package telemetry

import "go.opentelemetry.io/otel/attribute"

func providerAttr(provider string) attribute.KeyValue {
	return attribute.String("provider", provider)
}

func outcomeAttr(success bool) attribute.KeyValue {
	if success {
		return attribute.String("outcome", "success")
	}
	return attribute.String("outcome", "error")
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artemis_provider_calls_total",
			Help: "Outbound AI provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	chatRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artemis_chat_replies_total",
			Help: "Chat replies by the provider that produced them",
		},
		[]string{"provider"},
	)

	embedCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artemis_embed_cache_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)
)

// ProviderCall counts one upstream call. outcome is "ok" or an error code.
func ProviderCall(provider, outcome string) {
	providerCallsTotal.WithLabelValues(provider, outcome).Inc()
}

func ChatReply(provider string) {
	chatRepliesTotal.WithLabelValues(provider).Inc()
}

func EmbedCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	embedCacheTotal.WithLabelValues(result).Inc()
}

// Package infra contains technical adapters such as the Cloudant and
// in-memory stores, the language-model providers, the MQTT and Telegram
// notifiers and the metrics exporters. These packages should depend only
// on the interfaces defined in the core packages.
package infra

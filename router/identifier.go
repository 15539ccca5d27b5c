package router

import (
	"strings"

	"cmdai/provider"
)

// separator splits a namespace tag from the native model id.
const separator = "/"

// Route is the result of parsing a model identifier.
type Route struct {
	Provider provider.ProviderType
	Model    string // native id understood by the provider
}

// Parse maps a model identifier to its provider and native id.
//
// Only known namespace tags are recognized, so Ollama ids that contain a
// slash ("hf.co/org/model", "library/llama3") stay bare and route to the
// default provider.
func Parse(id string) Route {
	tag, native, found := strings.Cut(id, separator)
	if found {
		if pt := provider.ProviderType(tag); pt.IsNamespace() {
			return Route{Provider: pt, Model: native}
		}
	}
	return Route{Provider: provider.DefaultType, Model: id}
}

// IsNamespaced reports whether id carries a known namespace tag.
func IsNamespaced(id string) bool {
	return Parse(id).Provider != provider.DefaultType
}

// StripNamespace removes a known namespace tag from id.
func StripNamespace(id string) string {
	return Parse(id).Model
}

// AddNamespace prefixes a native id with tag.
func AddNamespace(native string, tag provider.ProviderType) string {
	return string(tag) + separator + native
}

// Package providers defines the interface for the OAuth identity provider
// used by the sign-in flow and is implemented by the accounts (production)
// and mock (testing) subpackages.
package providers

// Package accounts implements the providers.Provider interface for an
// OAuth 2.0 accounts server with a separate profile endpoint, the shape used
// by Firefox Accounts and compatible identity stacks.
package accounts

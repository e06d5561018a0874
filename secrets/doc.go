// Package secrets resolves the credentials the dispatcher needs at startup.
//
// Every store implements core.SecretStore and returns the raw payload stored
// under an id. Payloads are JSON objects such as {"secret": "..."} for the
// signing secret and {"token": "..."} for the bot token.
package secrets

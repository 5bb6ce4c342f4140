// Package tokenstore persists the Kite Connect access token.
//
// Three backends with different tradeoffs:
//   - LocalConfig: patches the accessToken line of the service's local config
//     file in place, leaving every other byte untouched
//   - File: a standalone token file with atomic writes and 0600 permissions,
//     convenient for scripts
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service)
package tokenstore

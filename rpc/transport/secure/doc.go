// Package secure implements TLS connectors for the transport package.
//
// The inventory protocol and the replication sub-protocol run entirely inside TLS; there is no
// plaintext fallback. The connectors wrap the tcp connectors, so the socket tuning applies to
// the underlying connection.
//
// Key Components:
//
//   - NewTLSServerConnector / NewTLSClientConnector: connectors built from certificate files.
//     A CA file on the server side turns on mutual TLS.
//
//   - LoadServerConfig / LoadClientConfig: tls.Config construction from a common.TLSConf.
//
//   - SelfSigned / WriteSelfSigned: certificate generation for development setups and tests
//     (dinv cert).
package secure

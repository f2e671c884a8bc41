// Package near is the gateway's connection to the NEAR ledger.
//
// It speaks the node's JSON-RPC dialect for views and account state, builds
// and signs Borsh-encoded FunctionCall transactions for change calls, and
// converts between display NEAR amounts and yoctoNEAR integers. Remote
// failures are returned as *RPCError or *ExecutionError and are never
// rewritten.
package near
